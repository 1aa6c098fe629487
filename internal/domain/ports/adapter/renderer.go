package adapter

import (
	"io"

	"formative-compliance/internal/domain/model"
)

// RenderInput is an assembled document ready to be laid out.
type RenderInput struct {
	Title    string
	Body     string
	Business model.BusinessInfo
	Industry string
}

// DocumentRenderer lays out document content in a specific file format.
type DocumentRenderer interface {
	Format() model.Format
	Render(w io.Writer, in RenderInput) error
}
