package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

const (
	docxDocumentXMLPath = "word/document.xml"
	contentTypesPath    = "[Content_Types].xml"
	docxMainContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
)

type contentTypes struct {
	Overrides []struct {
		PartName    string `xml:"PartName,attr"`
		ContentType string `xml:"ContentType,attr"`
	} `xml:"Override"`
}

func readZipFile(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("%s not found", name)
}

// docxMainDocumentPath reads the main document part from [Content_Types].xml, falling
// back to word/document.xml.
func docxMainDocumentPath(zr *zip.Reader) string {
	data, err := readZipFile(zr, contentTypesPath)
	if err != nil {
		return docxDocumentXMLPath
	}
	var ct contentTypes
	if err := xml.Unmarshal(data, &ct); err != nil {
		return docxDocumentXMLPath
	}
	for _, o := range ct.Overrides {
		if o.ContentType == docxMainContentType {
			return strings.TrimPrefix(o.PartName, "/")
		}
	}
	return docxDocumentXMLPath
}

// extractDOCX returns the text of every w:t run, one line per w:p paragraph. Paragraph
// and run attributes are ignored, so documents written by any editor come out whole.
func extractDOCX(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("extract DOCX: not a zip: %w", err)
	}
	docXML, err := readZipFile(zr, docxMainDocumentPath(zr))
	if err != nil {
		return "", fmt.Errorf("extract DOCX: %w", err)
	}

	dec := xml.NewDecoder(bytes.NewReader(docXML))
	var b strings.Builder
	inText := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("extract DOCX: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteByte('\t')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return strings.TrimSpace(b.String()), nil
}
