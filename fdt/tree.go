package fdt

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
)

// Property 节点属性，Value 为原始大端字节
type Property struct {
	Name  string
	Value []byte
}

// Node 设备树节点，根节点的 Name 为空串
type Node struct {
	Name       string
	Properties []Property
	Children   []*Node
}

// ReserveEntry 保留内存区域
type ReserveEntry struct {
	Address uint64
	Size    uint64
}

// Tree is an editable, unflattened device tree.
type Tree struct {
	Reserve []ReserveEntry
	BootCPU uint32
	Root    *Node
}

// Parse unflattens a validated blob into a Tree. NOP tokens are dropped.
func Parse(b []byte) (*Tree, error) {
	h, err := ReadHeader(b)
	if err != nil {
		return nil, err
	}
	if err := h.validate(len(b)); err != nil {
		return nil, err
	}

	t := &Tree{BootCPU: h.BootCPUIDPhys}
	end := int(h.TotalSize)
	for off := int(h.OffMemRsvmap); off+16 <= end; off += 16 {
		e := ReserveEntry{
			Address: binary.BigEndian.Uint64(b[off:]),
			Size:    binary.BigEndian.Uint64(b[off+8:]),
		}
		if e.Address == 0 && e.Size == 0 {
			break
		}
		t.Reserve = append(t.Reserve, e)
	}

	p := parser{
		st:      b[h.OffDtStruct : h.OffDtStruct+h.SizeDtStruct],
		strings: b[h.OffDtStrings : h.OffDtStrings+h.SizeDtStrings],
	}
	if t.Root, err = p.parse(); err != nil {
		return nil, err
	}
	return t, nil
}

// maxDepth 限制节点嵌套层数，超过即视为结构损坏
const maxDepth = 64

type parser struct {
	st      []byte
	strings []byte
	off     int
	depth   int
}

func (p *parser) u32() (uint32, error) {
	if p.off+4 > len(p.st) {
		return 0, fmt.Errorf("%w: unexpected end at %#x", ErrBadStructure, p.off)
	}
	v := binary.BigEndian.Uint32(p.st[p.off:])
	p.off += 4
	return v, nil
}

func (p *parser) token() (uint32, error) {
	for {
		tok, err := p.u32()
		if err != nil || tok != tokenNop {
			return tok, err
		}
	}
}

func align4(n int) int { return (n + 3) &^ 3 }

func (p *parser) parse() (*Node, error) {
	tok, err := p.token()
	if err != nil {
		return nil, err
	}
	if tok != tokenBeginNode {
		return nil, fmt.Errorf("%w: expected root node, got token %#x", ErrBadStructure, tok)
	}
	root, err := p.node()
	if err != nil {
		return nil, err
	}
	if tok, err = p.token(); err != nil {
		return nil, err
	}
	if tok != tokenEnd {
		return nil, fmt.Errorf("%w: expected end token, got %#x", ErrBadStructure, tok)
	}
	return root, nil
}

// node 解析 BEGIN_NODE 之后的内容，直到匹配的 END_NODE
func (p *parser) node() (*Node, error) {
	p.depth++
	defer func() { p.depth-- }()
	if p.depth > maxDepth {
		return nil, fmt.Errorf("%w: nesting deeper than %d at %#x", ErrBadStructure, maxDepth, p.off)
	}
	nul := bytes.IndexByte(p.st[p.off:], 0)
	if nul < 0 {
		return nil, fmt.Errorf("%w: unterminated node name at %#x", ErrBadStructure, p.off)
	}
	n := &Node{Name: string(p.st[p.off : p.off+nul])}
	p.off = align4(p.off + nul + 1)

	for {
		tok, err := p.token()
		if err != nil {
			return nil, err
		}
		switch tok {
		case tokenProp:
			prop, err := p.property()
			if err != nil {
				return nil, err
			}
			n.Properties = append(n.Properties, prop)
		case tokenBeginNode:
			child, err := p.node()
			if err != nil {
				return nil, err
			}
			n.Children = append(n.Children, child)
		case tokenEndNode:
			return n, nil
		default:
			return nil, fmt.Errorf("%w: unexpected token %#x in node %q", ErrBadStructure, tok, n.Name)
		}
	}
}

func (p *parser) property() (Property, error) {
	length, err := p.u32()
	if err != nil {
		return Property{}, err
	}
	nameoff, err := p.u32()
	if err != nil {
		return Property{}, err
	}
	if p.off+int(length) > len(p.st) {
		return Property{}, fmt.Errorf("%w: property value overruns structure block", ErrBadStructure)
	}
	if int(nameoff) >= len(p.strings) {
		return Property{}, fmt.Errorf("%w: property name offset %#x", ErrBadStructure, nameoff)
	}
	nul := bytes.IndexByte(p.strings[nameoff:], 0)
	if nul < 0 {
		return Property{}, fmt.Errorf("%w: unterminated property name", ErrBadStructure)
	}
	prop := Property{
		Name:  string(p.strings[nameoff : int(nameoff)+nul]),
		Value: append([]byte{}, p.st[p.off:p.off+int(length)]...),
	}
	p.off = align4(p.off + int(length))
	return prop, nil
}

// Flatten serializes the tree into a compact blob: header, memory
// reservation map, structure block and strings block.
func (t *Tree) Flatten() []byte {
	w := writer{offsets: map[string]int{}}
	w.node(t.rootNode())
	w.put(tokenEnd)

	rsv := make([]byte, 0, (len(t.Reserve)+1)*16)
	for _, e := range append(t.Reserve, ReserveEntry{}) {
		rsv = binary.BigEndian.AppendUint64(rsv, e.Address)
		rsv = binary.BigEndian.AppendUint64(rsv, e.Size)
	}

	offRsv := HeaderSize
	offStruct := offRsv + len(rsv)
	offStrings := offStruct + len(w.st)
	total := offStrings + len(w.strings)

	out := make([]byte, total)
	Header{
		Magic:           Magic,
		TotalSize:       uint32(total),
		OffDtStruct:     uint32(offStruct),
		OffDtStrings:    uint32(offStrings),
		OffMemRsvmap:    uint32(offRsv),
		Version:         Version,
		LastCompVersion: LastCompVersion,
		BootCPUIDPhys:   t.BootCPU,
		SizeDtStrings:   uint32(len(w.strings)),
		SizeDtStruct:    uint32(len(w.st)),
	}.put(out)
	copy(out[offRsv:], rsv)
	copy(out[offStruct:], w.st)
	copy(out[offStrings:], w.strings)
	return out
}

// FlattenInto serializes the tree into dst and declares len(dst) as the total
// size, leaving the tail as free space. dst is untouched on ErrNoSpace.
func (t *Tree) FlattenInto(dst []byte) error {
	b := t.Flatten()
	if len(b) > len(dst) {
		return fmt.Errorf("%w: need %d bytes, have %d", ErrNoSpace, len(b), len(dst))
	}
	copy(dst, b)
	clear(dst[len(b):])
	binary.BigEndian.PutUint32(dst[4:8], uint32(len(dst)))
	return nil
}

func (t *Tree) rootNode() *Node {
	if t.Root == nil {
		t.Root = &Node{}
	}
	return t.Root
}

type writer struct {
	st      []byte
	strings []byte
	offsets map[string]int
}

func (w *writer) put(v uint32) {
	w.st = binary.BigEndian.AppendUint32(w.st, v)
}

func (w *writer) pad() {
	for len(w.st)%4 != 0 {
		w.st = append(w.st, 0)
	}
}

func (w *writer) stringOffset(name string) int {
	if off, ok := w.offsets[name]; ok {
		return off
	}
	off := len(w.strings)
	w.strings = append(w.strings, name...)
	w.strings = append(w.strings, 0)
	w.offsets[name] = off
	return off
}

func (w *writer) node(n *Node) {
	w.put(tokenBeginNode)
	w.st = append(w.st, n.Name...)
	w.st = append(w.st, 0)
	w.pad()
	for _, p := range n.Properties {
		w.put(tokenProp)
		w.put(uint32(len(p.Value)))
		w.put(uint32(w.stringOffset(p.Name)))
		w.st = append(w.st, p.Value...)
		w.pad()
	}
	for _, c := range n.Children {
		w.node(c)
	}
	w.put(tokenEndNode)
}

// Clone returns a deep copy of the tree.
func (t *Tree) Clone() *Tree {
	c := &Tree{BootCPU: t.BootCPU, Reserve: append([]ReserveEntry(nil), t.Reserve...)}
	if t.Root != nil {
		c.Root = t.Root.Clone()
	}
	return c
}

// Clone returns a deep copy of the subtree rooted at n.
func (n *Node) Clone() *Node {
	c := &Node{Name: n.Name}
	for _, p := range n.Properties {
		c.Properties = append(c.Properties, Property{Name: p.Name, Value: append([]byte{}, p.Value...)})
	}
	for _, ch := range n.Children {
		c.Children = append(c.Children, ch.Clone())
	}
	return c
}

// Property 按名称查找属性
func (n *Node) Property(name string) (*Property, bool) {
	for i := range n.Properties {
		if n.Properties[i].Name == name {
			return &n.Properties[i], true
		}
	}
	return nil, false
}

// SetProperty replaces the value of an existing property or appends a new
// one. The value is stored as given.
func (n *Node) SetProperty(name string, value []byte) {
	if p, ok := n.Property(name); ok {
		p.Value = value
		return
	}
	n.Properties = append(n.Properties, Property{Name: name, Value: value})
}

// Child 查找子节点。
//
// 先精确匹配；name 不带单元地址时，也匹配 "name@addr" 形式的第一个子节点（与 libfdt 一致）。
func (n *Node) Child(name string) *Node {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	if strings.Contains(name, "@") {
		return nil
	}
	for _, c := range n.Children {
		if base, _, ok := strings.Cut(c.Name, "@"); ok && base == name {
			return c
		}
	}
	return nil
}

// AddChild 返回名为 name 的子节点，不存在时创建
func (n *Node) AddChild(name string) *Node {
	if c := n.Child(name); c != nil {
		return c
	}
	c := &Node{Name: name}
	n.Children = append(n.Children, c)
	return c
}

// Phandle returns the node's phandle from "phandle" or "linux,phandle".
func (n *Node) Phandle() (uint32, bool) {
	for _, name := range []string{"phandle", "linux,phandle"} {
		if p, ok := n.Property(name); ok {
			if v, ok := p.U32(); ok {
				return v, true
			}
		}
	}
	return 0, false
}

// U32 返回单个 cell 的值
func (p Property) U32() (uint32, bool) {
	if len(p.Value) != 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(p.Value), true
}

// AsString returns the value as a single NUL-terminated string.
func (p Property) AsString() (string, bool) {
	strs, ok := p.AsStrings()
	if !ok || len(strs) != 1 {
		return "", false
	}
	return strs[0], true
}

// AsStrings returns the value as a NUL-separated string list.
func (p Property) AsStrings() ([]string, bool) {
	if len(p.Value) == 0 || p.Value[len(p.Value)-1] != 0 {
		return nil, false
	}
	return strings.Split(string(p.Value[:len(p.Value)-1]), "\x00"), true
}

// StringValue encodes s as a property value.
func StringValue(s string) []byte {
	return append([]byte(s), 0)
}

// U32Value encodes v as a single cell.
func U32Value(v uint32) []byte {
	return binary.BigEndian.AppendUint32(nil, v)
}

// Lookup resolves an absolute path ("/soc/panel@0") or an alias-relative
// path ("display/panel") to a node.
func (t *Tree) Lookup(path string) (*Node, bool) {
	root := t.rootNode()
	if path == "" {
		return nil, false
	}
	n := root
	if !strings.HasPrefix(path, "/") {
		alias, rest, _ := strings.Cut(path, "/")
		aliases := root.Child("aliases")
		if aliases == nil {
			return nil, false
		}
		p, ok := aliases.Property(alias)
		if !ok {
			return nil, false
		}
		target, ok := p.AsString()
		if !ok || !strings.HasPrefix(target, "/") {
			return nil, false
		}
		if n, ok = t.Lookup(target); !ok {
			return nil, false
		}
		path = rest
	}
	for _, part := range strings.Split(path, "/") {
		if part == "" {
			continue
		}
		if n = n.Child(part); n == nil {
			return nil, false
		}
	}
	return n, true
}

// walk 深度优先遍历，fn 返回 false 时停止
func walk(n *Node, path string, fn func(n *Node, path string) bool) bool {
	if !fn(n, path) {
		return false
	}
	for _, c := range n.Children {
		cp := path + "/" + c.Name
		if path == "/" {
			cp = "/" + c.Name
		}
		if !walk(c, cp, fn) {
			return false
		}
	}
	return true
}

// Walk visits every node depth-first with its absolute path.
func (t *Tree) Walk(fn func(n *Node, path string) bool) {
	walk(t.rootNode(), "/", fn)
}

// PathOf 返回节点的绝对路径
func (t *Tree) PathOf(target *Node) (string, bool) {
	var found string
	t.Walk(func(n *Node, path string) bool {
		if n == target {
			found = path
			return false
		}
		return true
	})
	return found, found != ""
}

// NodeByPhandle 按 phandle 查找节点
func (t *Tree) NodeByPhandle(ph uint32) (*Node, bool) {
	var found *Node
	t.Walk(func(n *Node, _ string) bool {
		if v, ok := n.Phandle(); ok && v == ph {
			found = n
			return false
		}
		return true
	})
	return found, found != nil
}

// MaxPhandle returns the highest phandle in use, 0 if none.
func (t *Tree) MaxPhandle() uint32 {
	var highest uint32
	t.Walk(func(n *Node, _ string) bool {
		if v, ok := n.Phandle(); ok && v != 0xffffffff && v > highest {
			highest = v
		}
		return true
	})
	return highest
}
