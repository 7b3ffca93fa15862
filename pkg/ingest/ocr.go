package ingest

// OCREngine recognizes text from a scanned page image. Spec.md's Non-goals
// exclude building an OCR engine; this interface exists so a deployment can
// plug a real one in without touching PDFExtractor.
type OCREngine interface {
	RecognizeText(pageImage []byte) (text string, confidence float64, err error)
}

// NoopOCREngine is the default: it reports zero confidence and empty text,
// so pages pdfcpu can't extract native text from simply surface no
// candidates rather than fabricating content.
type NoopOCREngine struct{}

func NewNoopOCREngine() *NoopOCREngine { return &NoopOCREngine{} }

func (n *NoopOCREngine) RecognizeText(_ []byte) (string, float64, error) {
	return "", 0, nil
}
