package document

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

const (
	docxMainPart  = "word/document.xml"
	maxDOCXPart   = 64 << 20
	wordprocessML = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
)

// ReadDOCX returns the non-blank paragraphs of an Office Open XML document
// joined by blank lines.
func ReadDOCX(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("not an Office Open XML package: %w", err)
	}
	var part *zip.File
	for _, f := range zr.File {
		if f.Name == docxMainPart {
			part = f
			break
		}
	}
	if part == nil {
		return "", fmt.Errorf("package has no %s", docxMainPart)
	}
	rc, err := part.Open()
	if err != nil {
		return "", fmt.Errorf("open %s: %w", docxMainPart, err)
	}
	defer rc.Close()

	paragraphs, err := docxParagraphs(io.LimitReader(rc, maxDOCXPart))
	if err != nil {
		return "", err
	}
	var kept []string
	for _, p := range paragraphs {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		return "", errors.New(msgNoDOCXText)
	}
	return strings.Join(kept, "\n\n"), nil
}

// docxParagraphs walks the main document part and collects the text runs of
// every w:p element.
func docxParagraphs(r io.Reader) ([]string, error) {
	dec := xml.NewDecoder(r)
	var (
		out    []string
		cur    strings.Builder
		depth  int
		inText bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", docxMainPart, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Space != wordprocessML {
				continue
			}
			switch t.Name.Local {
			case "p":
				if depth == 0 {
					cur.Reset()
				}
				depth++
			case "t":
				inText = true
			case "tab":
				if depth > 0 {
					cur.WriteByte('\t')
				}
			case "br", "cr":
				if depth > 0 {
					cur.WriteByte('\n')
				}
			}
		case xml.EndElement:
			if t.Name.Space != wordprocessML {
				continue
			}
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if depth > 0 {
					depth--
					if depth == 0 {
						out = append(out, cur.String())
					}
				}
			}
		case xml.CharData:
			if inText && depth > 0 {
				cur.Write(t)
			}
		}
	}
	return out, nil
}

// ReconstructDOCX splits text on blank lines and writes each non-blank block
// as a paragraph of a new document. Original styling is not recoverable.
func ReconstructDOCX(text, title string) ([]byte, error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var paragraphs []string
	for _, block := range strings.Split(text, "\n\n") {
		if block = strings.TrimSpace(block); block != "" {
			paragraphs = append(paragraphs, block)
		}
	}
	return WriteDOCX(paragraphs, title)
}

// WriteDOCX builds a minimal Office Open XML package holding paragraphs.
// Line breaks inside a paragraph become w:br and tabs become w:tab.
func WriteDOCX(paragraphs []string, title string) ([]byte, error) {
	var body bytes.Buffer
	body.WriteString(xml.Header)
	body.WriteString(`<w:document xmlns:w="` + wordprocessML + `"><w:body>`)
	for _, p := range paragraphs {
		body.WriteString("<w:p><w:r>")
		for i, line := range strings.Split(p, "\n") {
			if i > 0 {
				body.WriteString("<w:br/>")
			}
			for j, seg := range strings.Split(line, "\t") {
				if j > 0 {
					body.WriteString("<w:tab/>")
				}
				if seg == "" {
					continue
				}
				body.WriteString(`<w:t xml:space="preserve">`)
				if err := xml.EscapeText(&body, []byte(seg)); err != nil {
					return nil, err
				}
				body.WriteString("</w:t>")
			}
		}
		body.WriteString("</w:r></w:p>")
	}
	body.WriteString(`<w:sectPr><w:pgSz w:w="12240" w:h="15840"/>` +
		`<w:pgMar w:top="1440" w:right="1440" w:bottom="1440" w:left="1440" w:header="720" w:footer="720" w:gutter="0"/>` +
		`</w:sectPr></w:body></w:document>`)

	var core bytes.Buffer
	core.WriteString(xml.Header)
	core.WriteString(`<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties"` +
		` xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:dcterms="http://purl.org/dc/terms/"` +
		` xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance"><dc:title>`)
	if err := xml.EscapeText(&core, []byte(title)); err != nil {
		return nil, err
	}
	core.WriteString(`</dc:title><dc:creator>redactx</dc:creator></cp:coreProperties>`)

	parts := []struct {
		name string
		data []byte
	}{
		{"[Content_Types].xml", []byte(xml.Header + `<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
			`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>` +
			`<Default Extension="xml" ContentType="application/xml"/>` +
			`<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>` +
			`<Override PartName="/docProps/core.xml" ContentType="application/vnd.openxmlformats-package.core-properties+xml"/>` +
			`</Types>`)},
		{"_rels/.rels", []byte(xml.Header + `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
			`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>` +
			`<Relationship Id="rId2" Type="http://schemas.openxmlformats.org/package/2006/relationships/metadata/core-properties" Target="docProps/core.xml"/>` +
			`</Relationships>`)},
		{docxMainPart, body.Bytes()},
		{"docProps/core.xml", core.Bytes()},
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	// Fixed timestamps keep output reproducible.
	modified := time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, p := range parts {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: p.name, Method: zip.Deflate, Modified: modified})
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", p.name, err)
		}
		if _, err := w.Write(p.data); err != nil {
			return nil, fmt.Errorf("write %s: %w", p.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close package: %w", err)
	}
	return buf.Bytes(), nil
}
