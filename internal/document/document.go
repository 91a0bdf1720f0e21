// Package document defines the source document model and the loaders that
// produce documents from web pages and PDF files.
//
// A Document is consumed exactly once by the ingestion pipeline; only the
// chunks derived from it persist.
package document

// Source type values carried in chunk metadata. Retrieval filters rely on
// these, so they are part of the stored contract.
const (
	SourceTypeWeb = "web"
	SourceTypePDF = "pdf"
)

// Document is a named source unit: a crawled web page or an extracted PDF.
type Document struct {
	// Source identifies the document: a URL for web pages, a file path for
	// PDFs. Together with a chunk number it forms the storage key.
	Source string

	// SourceType is SourceTypeWeb or SourceTypePDF.
	SourceType string

	// Title is the document-level title when the loader could determine
	// one; the first chunk of a document prefers it.
	Title string

	// Text is the raw extracted text.
	Text string

	// AssociatedURL links a PDF back to the site page it supports. Empty
	// for web documents.
	AssociatedURL string

	// Domain carries free-form document-level tags (e.g. development
	// stage, device type for regulatory PDFs). Passed through into every
	// chunk's stored metadata.
	Domain map[string]string
}
