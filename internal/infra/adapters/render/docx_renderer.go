package render

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"time"

	"formative-compliance/internal/domain/model"
	"formative-compliance/internal/domain/ports/adapter"
)

var _ adapter.DocumentRenderer = (*DOCXRenderer)(nil)

// DOCXRenderer writes a minimal WordprocessingML package: one document part with
// direct run formatting and core properties carrying the title.
type DOCXRenderer struct {
	now func() time.Time
}

func NewDOCXRenderer() *DOCXRenderer { return &DOCXRenderer{now: time.Now} }

func (r *DOCXRenderer) Format() model.Format { return model.FormatDOCX }

const contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
<Default Extension="xml" ContentType="application/xml"/>
<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
<Override PartName="/docProps/core.xml" ContentType="application/vnd.openxmlformats-package.core-properties+xml"/>
</Types>`

const rootRelsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
<Relationship Id="rId2" Type="http://schemas.openxmlformats.org/package/2006/relationships/metadata/core-properties" Target="docProps/core.xml"/>
</Relationships>`

func (r *DOCXRenderer) Render(w io.Writer, in adapter.RenderInput) error {
	zw := zip.NewWriter(w)
	parts := []struct {
		name string
		body []byte
	}{
		{"[Content_Types].xml", []byte(contentTypesXML)},
		{"_rels/.rels", []byte(rootRelsXML)},
		{"docProps/core.xml", r.coreXML(in.Title)},
		{"word/document.xml", documentXML(in)},
	}
	for _, p := range parts {
		f, err := zw.Create(p.name)
		if err != nil {
			return fmt.Errorf("render docx: %w", err)
		}
		if _, err := f.Write(p.body); err != nil {
			return fmt.Errorf("render docx: %w", err)
		}
	}
	return zw.Close()
}

func (r *DOCXRenderer) coreXML(title string) []byte {
	var b bytes.Buffer
	b.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:dcterms="http://purl.org/dc/terms/" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">`)
	b.WriteString("<dc:title>")
	escape(&b, title)
	b.WriteString("</dc:title><dc:creator>Formative Compliance</dc:creator>")
	b.WriteString(`<dcterms:created xsi:type="dcterms:W3CDTF">`)
	b.WriteString(r.now().UTC().Format(time.RFC3339))
	b.WriteString("</dcterms:created></cp:coreProperties>")
	return b.Bytes()
}

func documentXML(in adapter.RenderInput) []byte {
	var b bytes.Buffer
	b.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)

	paragraph(&b, in.Title, true, 36, "")
	for _, l := range businessLines(headerOf(in)) {
		paragraph(&b, l, false, 20, "")
	}
	paragraph(&b, "", false, 22, "")

	for _, blk := range parseBlocks(in.Body) {
		switch blk.kind {
		case blockHeading:
			paragraph(&b, blk.text, true, 26, "")
		case blockBullet:
			paragraph(&b, "• "+blk.text, false, 22, "360")
		default:
			paragraph(&b, blk.text, false, 22, "")
		}
	}

	b.WriteString(`<w:sectPr><w:pgSz w:w="11906" w:h="16838"/>` +
		`<w:pgMar w:top="1134" w:right="1134" w:bottom="1134" w:left="1134" w:header="709" w:footer="709" w:gutter="0"/>` +
		`</w:sectPr></w:body></w:document>`)
	return b.Bytes()
}

// paragraph writes one w:p; size is in half-points, indent in twips.
func paragraph(b *bytes.Buffer, text string, bold bool, size int, indent string) {
	b.WriteString("<w:p><w:pPr><w:spacing w:after=\"120\"/>")
	if indent != "" {
		b.WriteString(`<w:ind w:left="` + indent + `"/>`)
	}
	b.WriteString("</w:pPr>")
	if text != "" {
		b.WriteString("<w:r><w:rPr>")
		if bold {
			b.WriteString("<w:b/>")
		}
		fmt.Fprintf(b, `<w:sz w:val="%d"/>`, size)
		b.WriteString(`</w:rPr><w:t xml:space="preserve">`)
		escape(b, text)
		b.WriteString("</w:t></w:r>")
	}
	b.WriteString("</w:p>")
}

func escape(b *bytes.Buffer, s string) {
	_ = xml.EscapeText(b, []byte(s))
}
