//go:build !integration

package render

import (
	"archive/zip"
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formative-compliance/internal/domain/model"
	"formative-compliance/internal/domain/ports/adapter"
)

const sampleBody = `# Work Health and Safety Policy

1. Purpose
This policy sets out how Acme & Sons meets its duties.
It applies to all workers.

**Responsibilities**
- Management provides resources
* Workers report hazards

Reviewed annually.`

func sampleInput() adapter.RenderInput {
	return adapter.RenderInput{
		Title:    "WHS Policy",
		Body:     sampleBody,
		Industry: "Construction",
		Business: model.BusinessInfo{BusinessName: "Acme & Sons", State: "NSW", ABN: "12 345 678 901"},
	}
}

func TestParseBlocks(t *testing.T) {
	got := parseBlocks(sampleBody)
	require.Len(t, got, 7)
	assert.Equal(t, block{blockHeading, "Work Health and Safety Policy"}, got[0])
	assert.Equal(t, block{blockHeading, "1. Purpose"}, got[1])
	assert.Equal(t, block{blockParagraph, "This policy sets out how Acme & Sons meets its duties. It applies to all workers."}, got[2])
	assert.Equal(t, block{blockHeading, "Responsibilities"}, got[3])
	assert.Equal(t, block{blockBullet, "Management provides resources"}, got[4])
	assert.Equal(t, block{blockBullet, "Workers report hazards"}, got[5])
	assert.Equal(t, block{blockParagraph, "Reviewed annually."}, got[6])
}

func TestPDFRenderer(t *testing.T) {
	var buf bytes.Buffer
	r := NewPDFRenderer()
	assert.Equal(t, model.FormatPDF, r.Format())
	require.NoError(t, r.Render(&buf, sampleInput()))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
}

func TestDOCXRenderer(t *testing.T) {
	var buf bytes.Buffer
	r := NewDOCXRenderer()
	assert.Equal(t, model.FormatDOCX, r.Format())
	require.NoError(t, r.Render(&buf, sampleInput()))

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	files := map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		files[f.Name] = string(b)
	}
	require.Contains(t, files, "[Content_Types].xml")
	require.Contains(t, files, "word/document.xml")
	doc := files["word/document.xml"]
	assert.Contains(t, doc, "Acme &amp; Sons")
	assert.Contains(t, doc, "• Workers report hazards")
	assert.False(t, strings.Contains(doc, "**"))
	assert.Contains(t, files["docProps/core.xml"], "<dc:title>WHS Policy</dc:title>")
}
