package main

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/qs3c/lease_go_server/internal/jobs"
	"github.com/qs3c/lease_go_server/internal/ocr"
)

var routeCmd = &cobra.Command{
	Use:   "route",
	Short: "Print the routing decision for a document and question",
	Long: `Decides whether a document would be answered inline (quick) or queued as a
background job, using the router settings from the config file.

Examples:
  leasectl route --file lease.pdf --question "What is the ground rent?"`,
	RunE: runRoute,
}

func init() {
	f := routeCmd.Flags()
	f.String("file", "", "document to route (required)")
	f.String("question", "", "question to ask about the document")
	_ = routeCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(routeCmd)
}

// routeOutput route 命令的输出
type routeOutput struct {
	Filename     string   `json:"filename"`
	Size         int64    `json:"size"`
	MIME         string   `json:"mime"`
	Path         string   `json:"path"`
	Reason       string   `json:"reason"`
	PageEstimate int      `json:"page_estimate,omitempty"`
	Alternatives []string `json:"alternatives,omitempty"`
}

type flagDoc struct {
	name string
	data []byte
	mime string
}

// readDocument 读取 --file 指定的文件并识别类型
func readDocument(cmd *cobra.Command) (*flagDoc, error) {
	path, _ := cmd.Flags().GetString("file")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read %s", path)
	}
	name := filepath.Base(path)
	return &flagDoc{name: name, data: data, mime: ocr.DetectMIME(name, "", data)}, nil
}

func runRoute(cmd *cobra.Command, _ []string) error {
	doc, err := readDocument(cmd)
	if err != nil {
		return err
	}
	question, _ := cmd.Flags().GetString("question")

	router := jobs.NewRouter(cfg.Router, nil, zap.L())
	d := router.Decide(cmd.Context(), jobs.FileInfo{
		Filename: doc.name,
		MIME:     doc.mime,
		Size:     int64(len(doc.data)),
		Data:     doc.data,
	}, question)

	out := routeOutput{
		Filename:     doc.name,
		Size:         int64(len(doc.data)),
		MIME:         doc.mime,
		Path:         string(d.Path),
		Reason:       d.Reason,
		PageEstimate: d.PageEstimate,
	}
	if d.Path == jobs.PathBackground {
		out.Alternatives = jobs.Alternatives(question)
	}
	return printJSON(cmd, out)
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
