package ocr

import (
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/qs3c/lease_go_server/config"
)

// NewFromConfig 按 ocr.providers 的顺序构造引擎链，缺少密钥的远程引擎会被跳过
func NewFromConfig(cfg config.OCRConfig, timeout time.Duration, runner Runner, logger *zap.Logger) (*Chain, error) {
	if runner == nil {
		runner = NewExecRunner(logger)
	}

	var extractors []Extractor
	for _, name := range cfg.Providers {
		switch name {
		case "plain":
			extractors = append(extractors, PlainText{})
		case "docx":
			extractors = append(extractors, Docx{})
		case "pdftotext":
			extractors = append(extractors, NewPdfToText(cfg.PdfToTextPath, runner))
		case "tesseract":
			extractors = append(extractors, NewTesseract(TesseractConfig{
				Tesseract: cfg.TesseractPath,
				Pdftoppm:  cfg.PdftoppmPath,
				Lang:      cfg.TesseractLang,
				DPI:       cfg.DPI,
			}, runner))
		case "mistral":
			if cfg.MistralAPIKey == "" {
				logger.Warn("mistral ocr disabled: ocr.mistral_api_key is empty")
				continue
			}
			extractors = append(extractors, NewMistralOCR(cfg.MistralAPIKey, cfg.MistralModel))
		case "vision":
			if cfg.VisionAPIKey == "" {
				logger.Warn("vision ocr disabled: ocr.vision_api_key is empty")
				continue
			}
			extractors = append(extractors, NewVision(cfg.VisionBaseURL, cfg.VisionAPIKey, cfg.VisionModel))
		default:
			return nil, eris.Errorf("ocr: unknown provider %q", name)
		}
	}
	if len(extractors) == 0 {
		return nil, eris.New("ocr: no providers configured")
	}

	chain := NewChain(extractors, cfg.MaxBytes, timeout, logger)
	logger.Info("ocr chain ready", zap.Strings("engines", chain.Engines()))
	return chain, nil
}
