package xmp

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
)

const (
	packetBegin = "<?xpacket begin=\"\ufeff\" id=\"W5M0MpCehiHzreSzNTczkc9d\"?>\n"
	packetEnd   = "<?xpacket end=\"w\"?>"

	// DefaultPadding is the whitespace reserved in new packets so later
	// edits can be rewritten in place.
	DefaultPadding = 2048
)

var errNoRDF = errors.New("xmp: packet has no rdf:RDF element")

var defaultPrefixes = map[string]string{
	SchemaXMP:  "xmp",
	SchemaExif: "exif",
	SchemaDC:   "dc",
}

type arrayKind int

const (
	notArray arrayKind = iota
	arrayBag
	arraySeq
)

type property struct {
	ns    string
	name  string
	value string
	kind  arrayKind
	items []string
	// raw holds the verbatim element of a property this package does not
	// model (structs, alt-text, qualifiers) so it survives a rewrite.
	raw []byte
	// scope is the prefix -> URI binding the raw element inherited from its
	// ancestors, minus prefixes it declares itself.
	scope map[string]string
}

func (p *property) clone() *property {
	c := *p
	c.items = slices.Clone(p.items)
	c.raw = bytes.Clone(p.raw)
	c.scope = maps.Clone(p.scope)
	return &c
}

// Packet is a decoded XMP packet: an ordered set of properties keyed by
// namespace URI and local name.
type Packet struct {
	props    []*property
	prefixes map[string]string // namespace URI -> prefix
}

// NewPacket returns an empty packet.
func NewPacket() *Packet {
	return &Packet{prefixes: make(map[string]string)}
}

// Clone returns a deep copy.
func (p *Packet) Clone() *Packet {
	c := &Packet{
		props:    make([]*property, len(p.props)),
		prefixes: make(map[string]string, len(p.prefixes)),
	}
	for i, prop := range p.props {
		c.props[i] = prop.clone()
	}
	for k, v := range p.prefixes {
		c.prefixes[k] = v
	}
	return c
}

// Len returns the number of top-level properties.
func (p *Packet) Len() int { return len(p.props) }

func splitName(qname string) (prefix, local string) {
	if i := strings.IndexByte(qname, ':'); i >= 0 {
		return qname[:i], qname[i+1:]
	}
	return "", qname
}

func (p *Packet) find(ns, local string) (int, *property) {
	for i, prop := range p.props {
		if prop.ns == ns && prop.name == local {
			return i, prop
		}
	}
	return -1, nil
}

// bind makes sure ns has a prefix, preferring hint.
func (p *Packet) bind(ns, hint string) {
	if _, ok := p.prefixes[ns]; ok || ns == nsRDF || ns == nsXML {
		return
	}
	candidates := []string{hint, defaultPrefixes[ns]}
	for _, c := range candidates {
		if c != "" && !p.prefixInUse(c) {
			p.prefixes[ns] = c
			return
		}
	}
	for i := 1; ; i++ {
		c := fmt.Sprintf("ns%d", i)
		if !p.prefixInUse(c) {
			p.prefixes[ns] = c
			return
		}
	}
}

func (p *Packet) prefixInUse(prefix string) bool {
	for _, v := range p.prefixes {
		if v == prefix {
			return true
		}
	}
	return false
}

// Property returns the value of a simple property.
func (p *Packet) Property(ns, name string) (string, bool) {
	_, local := splitName(name)
	_, prop := p.find(ns, local)
	if prop == nil || prop.kind != notArray || prop.raw != nil {
		return "", false
	}
	return prop.value, true
}

// ArrayItem returns the item at one-based index of an array property.
func (p *Packet) ArrayItem(ns, name string, index int) (string, bool) {
	_, local := splitName(name)
	_, prop := p.find(ns, local)
	if prop == nil || prop.kind == notArray || index < 1 || index > len(prop.items) {
		return "", false
	}
	return prop.items[index-1], true
}

// SetProperty sets a simple property, replacing any previous value.
func (p *Packet) SetProperty(ns, name, value string) error {
	prefix, local := splitName(name)
	if ns == "" || local == "" {
		return fmt.Errorf("xmp: invalid property %q in %q", name, ns)
	}
	p.bind(ns, prefix)
	prop := &property{ns: ns, name: local, value: value}
	if i, _ := p.find(ns, local); i >= 0 {
		p.props[i] = prop
		return nil
	}
	p.props = append(p.props, prop)
	return nil
}

// AppendArrayItem appends value to an array property, creating it when absent.
func (p *Packet) AppendArrayItem(ns, name string, arrayFlags PropFlags, value string) error {
	prefix, local := splitName(name)
	if ns == "" || local == "" {
		return fmt.Errorf("xmp: invalid property %q in %q", name, ns)
	}
	_, prop := p.find(ns, local)
	if prop == nil {
		kind := arrayBag
		if arrayFlags&ArrayIsOrdered != 0 {
			kind = arraySeq
		}
		p.bind(ns, prefix)
		prop = &property{ns: ns, name: local, kind: kind}
		p.props = append(p.props, prop)
	}
	if prop.kind == notArray {
		return fmt.Errorf("xmp: %s is not an array", name)
	}
	prop.items = append(prop.items, value)
	return nil
}

// DeleteProperty removes a property if present.
func (p *Packet) DeleteProperty(ns, name string) {
	_, local := splitName(name)
	if i, _ := p.find(ns, local); i >= 0 {
		p.props = slices.Delete(p.props, i, i+1)
	}
}

type node struct {
	name     xml.Name
	attrs    []xml.Attr
	text     strings.Builder
	children []*node
}

func isDecl(a xml.Attr) bool {
	return a.Name.Space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns")
}

// declare records the namespace declarations of attrs in scope.
func declare(scope map[string]string, attrs []xml.Attr) {
	for _, a := range attrs {
		switch {
		case a.Name.Space == "xmlns":
			scope[a.Name.Local] = a.Value
		case a.Name.Space == "" && a.Name.Local == "xmlns":
			scope[""] = a.Value
		}
	}
}

func inherited(scope map[string]string, own []xml.Attr) map[string]string {
	out := maps.Clone(scope)
	for _, a := range own {
		switch {
		case a.Name.Space == "xmlns":
			delete(out, a.Name.Local)
		case a.Name.Space == "" && a.Name.Local == "xmlns":
			delete(out, "")
		}
	}
	return out
}

func (n *node) hasQualifiers() bool {
	for _, a := range n.attrs {
		if !isDecl(a) {
			return true
		}
	}
	return false
}

func readNode(d *xml.Decoder, se xml.StartElement) (*node, error) {
	n := &node{name: se.Name, attrs: se.Attr}
	for {
		tok, err := d.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			c, err := readNode(d, t)
			if err != nil {
				return nil, err
			}
			n.children = append(n.children, c)
		case xml.CharData:
			n.text.Write(t)
		case xml.EndElement:
			return n, nil
		}
	}
}

// modelled reports whether n is a simple value or a plain Bag/Seq of strings.
func propertyFromNode(n *node) (*property, bool) {
	prop := &property{ns: n.name.Space, name: n.name.Local}
	if n.hasQualifiers() {
		return prop, false
	}
	if len(n.children) == 0 {
		prop.value = n.text.String()
		return prop, true
	}
	if len(n.children) != 1 || strings.TrimSpace(n.text.String()) != "" {
		return prop, false
	}
	c := n.children[0]
	if c.name.Space != nsRDF || c.hasQualifiers() {
		return prop, false
	}
	switch c.name.Local {
	case "Bag":
		prop.kind = arrayBag
	case "Seq":
		prop.kind = arraySeq
	default:
		return prop, false
	}
	prop.items = make([]string, 0, len(c.children))
	for _, li := range c.children {
		if li.name.Space != nsRDF || li.name.Local != "li" || li.hasQualifiers() || len(li.children) > 0 {
			return prop, false
		}
		prop.items = append(prop.items, li.text.String())
	}
	return prop, true
}

func (p *Packet) noteDecls(attrs []xml.Attr) {
	for _, a := range attrs {
		if a.Name.Space != "xmlns" {
			continue
		}
		switch a.Value {
		case nsRDF, nsMeta, nsXML:
			continue
		}
		p.bind(a.Value, a.Name.Local)
	}
}

func (p *Packet) put(prop *property) {
	if prop.ns == "" {
		return
	}
	if i, _ := p.find(prop.ns, prop.name); i >= 0 {
		p.props[i] = prop
		return
	}
	p.bind(prop.ns, "")
	p.props = append(p.props, prop)
}

// ParsePacket decodes the RDF/XML payload of an XMP packet. Properties may
// be written as attributes of rdf:Description or as child elements.
func ParsePacket(data []byte) (*Packet, error) {
	p := NewPacket()
	d := xml.NewDecoder(bytes.NewReader(data))
	sawRDF := false
	outer := make(map[string]string)
	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("xmp: parse packet: %w", err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if se.Name.Space != nsRDF || se.Name.Local != "Description" {
			declare(outer, se.Attr)
		}
		if se.Name.Space != nsRDF {
			continue
		}
		switch se.Name.Local {
		case "RDF":
			sawRDF = true
			p.noteDecls(se.Attr)
		case "Description":
			if err := p.parseDescription(d, data, se, outer); err != nil {
				return nil, fmt.Errorf("xmp: parse packet: %w", err)
			}
		}
	}
	if !sawRDF {
		return nil, errNoRDF
	}
	return p, nil
}

func (p *Packet) parseDescription(d *xml.Decoder, data []byte, se xml.StartElement, outer map[string]string) error {
	p.noteDecls(se.Attr)
	scope := maps.Clone(outer)
	declare(scope, se.Attr)
	for _, a := range se.Attr {
		if isDecl(a) || a.Name.Space == "" || a.Name.Space == nsRDF || a.Name.Space == nsXML {
			continue
		}
		p.put(&property{ns: a.Name.Space, name: a.Name.Local, value: a.Value})
	}
	for {
		start := d.InputOffset()
		tok, err := d.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			p.noteDecls(t.Attr)
			n, err := readNode(d, t)
			if err != nil {
				return err
			}
			prop, modelled := propertyFromNode(n)
			if !modelled {
				prop.raw = bytes.Clone(data[start:d.InputOffset()])
				prop.scope = inherited(scope, t.Attr)
			}
			p.put(prop)
		case xml.EndElement:
			return nil
		}
	}
}

func writeEscaped(b *bytes.Buffer, s string) {
	_ = xml.EscapeText(b, []byte(s))
}

// writeRaw writes a verbatim element, redeclaring on its start tag every
// inherited prefix that the rewritten packet binds differently or not at all.
func writeRaw(b *bytes.Buffer, prop *property, bound map[string]string) {
	var missing []string
	for prefix, uri := range prop.scope {
		if prefix == "xml" || prefix == "xmlns" {
			continue
		}
		if got, ok := bound[prefix]; !ok || got != uri {
			missing = append(missing, prefix)
		}
	}
	if len(missing) == 0 {
		b.Write(prop.raw)
		return
	}
	slices.Sort(missing)

	// End of the element name: first whitespace, '/' or '>' after '<'.
	i := 1
	for i < len(prop.raw) && !strings.ContainsRune(" \t\r\n/>", rune(prop.raw[i])) {
		i++
	}
	b.Write(prop.raw[:i])
	for _, prefix := range missing {
		if prefix == "" {
			b.WriteString(" xmlns=\"")
		} else {
			b.WriteString(" xmlns:" + prefix + "=\"")
		}
		writeEscaped(b, prop.scope[prefix])
		b.WriteString("\"")
	}
	b.Write(prop.raw[i:])
}

// Marshal serialises the packet with the given amount of trailing padding.
func (p *Packet) Marshal(padding int) []byte {
	var b bytes.Buffer
	b.WriteString(packetBegin)
	b.WriteString("<x:xmpmeta xmlns:x=\"adobe:ns:meta/\">\n")
	b.WriteString(" <rdf:RDF xmlns:rdf=\"" + nsRDF + "\">\n")
	b.WriteString("  <rdf:Description rdf:about=\"\"")

	uris := make([]string, 0, len(p.prefixes))
	for uri := range p.prefixes {
		uris = append(uris, uri)
	}
	slices.SortFunc(uris, func(a, b string) int { return strings.Compare(p.prefixes[a], p.prefixes[b]) })
	for _, uri := range uris {
		b.WriteString("\n    xmlns:" + p.prefixes[uri] + "=\"")
		writeEscaped(&b, uri)
		b.WriteString("\"")
	}
	b.WriteString(">\n")

	bound := map[string]string{"x": nsMeta, "rdf": nsRDF}
	for uri, prefix := range p.prefixes {
		bound[prefix] = uri
	}
	for _, prop := range p.props {
		if prop.raw != nil {
			b.WriteString("   ")
			writeRaw(&b, prop, bound)
			b.WriteString("\n")
			continue
		}
		qname := p.prefixes[prop.ns] + ":" + prop.name
		switch prop.kind {
		case notArray:
			b.WriteString("   <" + qname + ">")
			writeEscaped(&b, prop.value)
			b.WriteString("</" + qname + ">\n")
		default:
			container := "rdf:Bag"
			if prop.kind == arraySeq {
				container = "rdf:Seq"
			}
			b.WriteString("   <" + qname + ">\n    <" + container + ">\n")
			for _, item := range prop.items {
				b.WriteString("     <rdf:li>")
				writeEscaped(&b, item)
				b.WriteString("</rdf:li>\n")
			}
			b.WriteString("    </" + container + ">\n   </" + qname + ">\n")
		}
	}

	b.WriteString("  </rdf:Description>\n </rdf:RDF>\n</x:xmpmeta>\n")
	writePadding(&b, padding)
	b.WriteString(packetEnd)
	return b.Bytes()
}

// MarshalSized serialises the packet padded to exactly size bytes. It
// reports false when the packet does not fit.
func (p *Packet) MarshalSized(size int) ([]byte, bool) {
	base := p.Marshal(0)
	if len(base) > size {
		return nil, false
	}
	out := p.Marshal(size - len(base))
	return out, len(out) == size
}

func writePadding(b *bytes.Buffer, n int) {
	for n > 0 {
		line := min(n, 100)
		b.WriteString(strings.Repeat(" ", line-1))
		b.WriteByte('\n')
		n -= line
	}
}
