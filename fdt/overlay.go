package fdt

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

const (
	overlayNode     = "__overlay__"
	fixupsNode      = "__fixups__"
	localFixupsNode = "__local_fixups__"
	symbolsNode     = "__symbols__"
)

// ApplyOverlay merges the compiled overlay ov into base.
//
// The steps follow libfdt: overlay phandles are shifted above the base's
// highest phandle and every local reference listed in __local_fixups__ is
// adjusted; references to base labels listed in __fixups__ are resolved via
// the base __symbols__ node; each fragment's __overlay__ node is merged into
// the node named by "target" (phandle) or "target-path"; labels defined in
// the overlay are added to the base __symbols__.
//
// Neither argument is modified if an error is returned; ov is never modified.
func ApplyOverlay(base, ov *Tree) error {
	work := base.Clone()
	o := ov.Clone()

	delta := work.MaxPhandle()
	if err := adjustLocalPhandles(o, delta); err != nil {
		return err
	}
	if fix := o.rootNode().Child(localFixupsNode); fix != nil {
		if err := updateLocalReferences(o.rootNode(), fix, delta); err != nil {
			return err
		}
	}
	if err := fixupPhandles(work, o); err != nil {
		return err
	}
	if err := mergeFragments(work, o); err != nil {
		return err
	}
	if err := updateSymbols(work, o); err != nil {
		return err
	}

	*base = *work
	return nil
}

func adjustLocalPhandles(o *Tree, delta uint32) error {
	var err error
	o.Walk(func(n *Node, path string) bool {
		for _, name := range []string{"phandle", "linux,phandle"} {
			p, ok := n.Property(name)
			if !ok {
				continue
			}
			v, ok := p.U32()
			if !ok || v == 0 || v == 0xffffffff {
				err = fmt.Errorf("%w: %s in %s", ErrBadPhandle, name, path)
				return false
			}
			if uint64(v)+uint64(delta) >= 0xffffffff {
				err = fmt.Errorf("%w: %s in %s overflows", ErrBadPhandle, name, path)
				return false
			}
			p.Value = U32Value(v + delta)
		}
		return true
	})
	return err
}

// updateLocalReferences 按 __local_fixups__ 的镜像结构修正 overlay 内部引用
func updateLocalReferences(n, fix *Node, delta uint32) error {
	for _, fp := range fix.Properties {
		p, ok := n.Property(fp.Name)
		if !ok {
			return fmt.Errorf("%w: local fixup for missing property %q in %q", ErrBadOverlay, fp.Name, n.Name)
		}
		if len(fp.Value)%4 != 0 {
			return fmt.Errorf("%w: local fixup %q has length %d", ErrBadOverlay, fp.Name, len(fp.Value))
		}
		for i := 0; i < len(fp.Value); i += 4 {
			off := int(binary.BigEndian.Uint32(fp.Value[i:]))
			if off+4 > len(p.Value) {
				return fmt.Errorf("%w: local fixup offset %d beyond %q", ErrBadOverlay, off, fp.Name)
			}
			v := binary.BigEndian.Uint32(p.Value[off:])
			binary.BigEndian.PutUint32(p.Value[off:], v+delta)
		}
	}
	for _, fc := range fix.Children {
		c := exactChild(n, fc.Name)
		if c == nil {
			return fmt.Errorf("%w: local fixup for missing node %q", ErrBadOverlay, fc.Name)
		}
		if err := updateLocalReferences(c, fc, delta); err != nil {
			return err
		}
	}
	return nil
}

func exactChild(n *Node, name string) *Node {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// fixupPhandles 用基础树 __symbols__ 中的标签解析 overlay 的外部引用
func fixupPhandles(base, o *Tree) error {
	fixups := o.rootNode().Child(fixupsNode)
	if fixups == nil || len(fixups.Properties) == 0 {
		return nil
	}
	symbols := base.rootNode().Child(symbolsNode)
	if symbols == nil {
		return fmt.Errorf("%w: base has no %s for overlay fixups", ErrNotFound, symbolsNode)
	}

	for _, fp := range fixups.Properties {
		sym, ok := symbols.Property(fp.Name)
		if !ok {
			return fmt.Errorf("%w: label %q", ErrNotFound, fp.Name)
		}
		path, ok := sym.AsString()
		if !ok {
			return fmt.Errorf("%w: symbol %q is not a path", ErrBadOverlay, fp.Name)
		}
		target, ok := base.Lookup(path)
		if !ok {
			return fmt.Errorf("%w: symbol %q points to missing %s", ErrNotFound, fp.Name, path)
		}
		ph, ok := target.Phandle()
		if !ok {
			return fmt.Errorf("%w: %s has no phandle", ErrBadPhandle, path)
		}

		refs, ok := fp.AsStrings()
		if !ok {
			return fmt.Errorf("%w: fixup %q is not a string list", ErrBadOverlay, fp.Name)
		}
		for _, ref := range refs {
			if err := applyFixup(o, ref, ph); err != nil {
				return err
			}
		}
	}
	return nil
}

// applyFixup 处理 "path:property:offset" 形式的引用
func applyFixup(o *Tree, ref string, ph uint32) error {
	// 路径中可能含有冒号以外的任意字符，属性名与偏移从右侧切分
	i := strings.LastIndexByte(ref, ':')
	if i < 0 {
		return fmt.Errorf("%w: fixup %q", ErrBadOverlay, ref)
	}
	off, err := strconv.ParseUint(ref[i+1:], 10, 32)
	if err != nil {
		return fmt.Errorf("%w: fixup %q offset: %v", ErrBadOverlay, ref, err)
	}
	rest := ref[:i]
	j := strings.LastIndexByte(rest, ':')
	if j < 0 {
		return fmt.Errorf("%w: fixup %q", ErrBadOverlay, ref)
	}
	path, prop := rest[:j], rest[j+1:]

	n, ok := o.Lookup(path)
	if !ok {
		return fmt.Errorf("%w: fixup node %s", ErrBadOverlay, path)
	}
	p, ok := n.Property(prop)
	if !ok {
		return fmt.Errorf("%w: fixup property %s:%s", ErrBadOverlay, path, prop)
	}
	if int(off)+4 > len(p.Value) {
		return fmt.Errorf("%w: fixup offset %d beyond %s:%s", ErrBadOverlay, off, path, prop)
	}
	binary.BigEndian.PutUint32(p.Value[off:], ph)
	return nil
}

// fragmentTarget 返回 fragment 在基础树中的目标节点
func fragmentTarget(base *Tree, frag *Node) (*Node, error) {
	if p, ok := frag.Property("target"); ok {
		ph, ok := p.U32()
		if !ok || ph == 0 || ph == 0xffffffff {
			return nil, fmt.Errorf("%w: fragment %s target", ErrBadPhandle, frag.Name)
		}
		n, ok := base.NodeByPhandle(ph)
		if !ok {
			return nil, fmt.Errorf("%w: fragment %s target phandle %#x", ErrNotFound, frag.Name, ph)
		}
		return n, nil
	}
	if p, ok := frag.Property("target-path"); ok {
		path, ok := p.AsString()
		if !ok {
			return nil, fmt.Errorf("%w: fragment %s target-path", ErrBadOverlay, frag.Name)
		}
		n, ok := base.Lookup(path)
		if !ok {
			return nil, fmt.Errorf("%w: fragment %s target-path %s", ErrNotFound, frag.Name, path)
		}
		return n, nil
	}
	return nil, fmt.Errorf("%w: fragment %s has no target", ErrBadOverlay, frag.Name)
}

func mergeFragments(base, o *Tree) error {
	for _, frag := range o.rootNode().Children {
		ov := exactChild(frag, overlayNode)
		if ov == nil {
			continue
		}
		target, err := fragmentTarget(base, frag)
		if err != nil {
			return err
		}
		mergeNode(target, ov)
	}
	return nil
}

func mergeNode(dst, src *Node) {
	for _, p := range src.Properties {
		dst.SetProperty(p.Name, append([]byte{}, p.Value...))
	}
	for _, c := range src.Children {
		mergeNode(dst.AddChild(c.Name), c)
	}
}

// updateSymbols 把 overlay 中定义的标签改写为基础树中的最终路径
func updateSymbols(base, o *Tree) error {
	osyms := o.rootNode().Child(symbolsNode)
	if osyms == nil {
		return nil
	}
	var bsyms *Node

	for _, sp := range osyms.Properties {
		path, ok := sp.AsString()
		if !ok {
			return fmt.Errorf("%w: symbol %q is not a path", ErrBadOverlay, sp.Name)
		}
		// 只处理 /<fragment>/__overlay__/... 形式的路径
		fragName, rest, ok := strings.Cut(strings.TrimPrefix(path, "/"), "/")
		if !ok || !strings.HasPrefix(path, "/") {
			continue
		}
		if rest != overlayNode && !strings.HasPrefix(rest, overlayNode+"/") {
			continue
		}
		rel := strings.TrimPrefix(rest, overlayNode)

		frag := exactChild(o.rootNode(), fragName)
		if frag == nil {
			return fmt.Errorf("%w: symbol %q names missing fragment %s", ErrBadOverlay, sp.Name, fragName)
		}
		target, err := fragmentTarget(base, frag)
		if err != nil {
			return err
		}
		targetPath, ok := base.PathOf(target)
		if !ok {
			return fmt.Errorf("%w: fragment %s target detached", ErrNotFound, fragName)
		}
		full := targetPath + rel
		if targetPath == "/" {
			full = rel
			if full == "" {
				full = "/"
			}
		}

		if bsyms == nil {
			bsyms = base.rootNode().AddChild(symbolsNode)
		}
		bsyms.SetProperty(sp.Name, StringValue(full))
	}
	return nil
}
