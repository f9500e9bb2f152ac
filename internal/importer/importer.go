// Package importer loads sales exports into the ledger and the task board
// through the same normalization and sink contracts as the webhook.
package importer

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/recovery-sync/internal/identity"
	"github.com/sells-group/recovery-sync/internal/model"
	"github.com/sells-group/recovery-sync/internal/normalize"
	"github.com/sells-group/recovery-sync/internal/pipeline"
)

// Folded export column names.
const (
	colSaleID      = "codigo da venda"
	colDate        = "data"
	colName        = "nome do cliente"
	colEmail       = "email do cliente"
	colGross       = "valor bruto"
	colNet         = "valor liquido"
	colPhone       = "telefone"
	colProduct     = "nome do produto"
	colStatus      = "status da venda"
	colPaymentDate = "data de pagamento"
)

// provenanceColumns maps export columns to their key in the stored raw
// payload. Columns not listed here are kept under their folded name.
var provenanceColumns = map[string]string{
	"metodo de pagamento":          "metodo_pagamento",
	"codigo da oferta":             "codigo_oferta",
	"nome da oferta":               "nome_oferta",
	"erro do processamento":        "erro_processamento",
	"documento":                    "documento",
	"tipo de documento":            "tipo_documento",
	"estado do cliente":            "estado",
	"cidade do cliente":            "cidade",
	"bairro do cliente":            "bairro",
	"cep do cliente":               "cep",
	"endereco do cliente":          "endereco",
	"complemento do endereco":      "complemento",
	"numero do cliente":            "numero",
	"co-produtor":                  "co_produtor",
	"gerente de afiliados":         "gerente_afiliados",
	"nome do afiliado":             "nome_afiliado",
	"afiliado":                     "afiliado",
	"codigo pais":                  "codigo_pais",
	"parcelas contrato assinatura": "parcelas_contrato",
	"parcela atual":                "parcela_atual",
	"cupom":                        "cupom",
}

var canonicalColumns = map[string]bool{
	colSaleID: true, colDate: true, colName: true, colEmail: true, colGross: true,
	colNet: true, colPhone: true, colProduct: true, colStatus: true, colPaymentDate: true,
	"utm_source": true, "utm_medium": true, "utm_campaign": true, "utm_content": true, "utm_term": true,
}

// Deliverer writes one merged lead to the sinks.
type Deliverer interface {
	Deliver(ctx context.Context, lead model.Lead, byProduct, withTasks bool) map[string]pipeline.SinkReport
}

// Options controls one import run.
type Options struct {
	Project string
	// ByProduct keys rows by (email, project, product) for order-bump
	// exports. Rows without a product are skipped and the task board,
	// which holds one task per (email, project), is not written.
	ByProduct  bool
	LedgerOnly bool
}

// DivergentGroup is a merged group whose descriptive fields disagreed, so
// the stored values depend on row order.
type DivergentGroup struct {
	Key    string   `json:"key"`
	Fields []string `json:"fields"`
}

// Summary reports one import run.
type Summary struct {
	Rows             int              `json:"rows"`
	SkippedNoEmail   int              `json:"skipped_no_email"`
	SkippedNoProduct int              `json:"skipped_no_product"`
	Groups           int              `json:"groups"`
	Inserted         int              `json:"inserted"`
	Updated          int              `json:"updated"`
	Errors           int              `json:"errors"`
	TasksCreated     int              `json:"tasks_created"`
	TasksUpdated     int              `json:"tasks_updated"`
	TaskErrors       int              `json:"task_errors"`
	Divergent        []DivergentGroup `json:"divergent,omitempty"`
}

// Skipped is the number of rows that never reached a sink.
func (s *Summary) Skipped() int { return s.SkippedNoEmail + s.SkippedNoProduct }

// Importer turns export rows into merged leads and delivers them.
type Importer struct {
	normalizer *pipeline.Normalizer
	sinks      Deliverer
	log        *zap.Logger
}

// New creates an Importer.
func New(normalizer *pipeline.Normalizer, sinks Deliverer) *Importer {
	return &Importer{
		normalizer: normalizer,
		sinks:      sinks,
		log:        zap.L().With(zap.String("component", "importer")),
	}
}

// ImportFile reads path and imports every row.
func (im *Importer) ImportFile(ctx context.Context, path, sheet string, opts Options) (*Summary, error) {
	table, err := ReadFile(path, sheet)
	if err != nil {
		return nil, err
	}
	return im.Import(ctx, table, opts)
}

// Import normalizes, groups and merges the table's rows, then writes each
// merged group in order. Sink failures are counted, not returned; the error
// is non-nil only when ctx ends before every group was written.
func (im *Importer) Import(ctx context.Context, table *Table, opts Options) (*Summary, error) {
	sum := &Summary{}
	var leads []model.Lead

	for _, rec := range table.Records() {
		sum.Rows++
		if rec[colEmail] == "" {
			sum.SkippedNoEmail++
			im.log.Warn("row skipped: no email", zap.Int("row", sum.Rows), zap.String("sale_id", rec[colSaleID]))
			continue
		}
		if opts.ByProduct && rec[colProduct] == "" {
			sum.SkippedNoProduct++
			im.log.Warn("row skipped: no product", zap.Int("row", sum.Rows), zap.String("email", rec[colEmail]))
			continue
		}

		n := im.normalizer.Normalize(rowPayload(rec), opts.Project)
		n.Lead.Raw = nil
		if p := provenance(rec, opts.ByProduct); p != nil {
			n.Lead.Raw = p
		}
		leads = append(leads, n.Lead)
	}

	groups := identity.GroupLeads(leads, opts.ByProduct)
	sum.Groups = len(groups)
	withTasks := !opts.LedgerOnly && !opts.ByProduct

	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return sum, eris.Wrap(err, "importer: interrupted")
		}

		merged, div := identity.MergeBatch(g)
		if len(div) > 0 {
			sum.Divergent = append(sum.Divergent, DivergentGroup{Key: g.Key.String(), Fields: div})
			im.log.Warn("merged rows disagree, last row wins",
				zap.String("key", g.Key.String()),
				zap.Int("rows", len(g.Leads)),
				zap.Strings("fields", div),
			)
		}

		reports := im.sinks.Deliver(ctx, merged, opts.ByProduct, withTasks)
		sum.tally(reports)
	}

	im.log.Info("import complete",
		zap.Int("rows", sum.Rows),
		zap.Int("skipped", sum.Skipped()),
		zap.Int("groups", sum.Groups),
		zap.Int("inserted", sum.Inserted),
		zap.Int("updated", sum.Updated),
		zap.Int("errors", sum.Errors),
		zap.Int("divergent", len(sum.Divergent)),
	)
	return sum, nil
}

func (s *Summary) tally(reports map[string]pipeline.SinkReport) {
	led := reports[pipeline.SinkLedger]
	switch {
	case led.Status == pipeline.StatusFailed:
		s.Errors++
	case led.Outcome == "inserted":
		s.Inserted++
	case led.Outcome == "updated":
		s.Updated++
	}

	task := reports[pipeline.SinkTaskBoard]
	switch {
	case task.Status == pipeline.StatusFailed:
		s.TaskErrors++
	case task.Outcome == "created":
		s.TasksCreated++
	case task.Outcome == "updated":
		s.TasksUpdated++
	}
}

// rowPayload shapes an export row like a webhook event. The raw sale status
// doubles as the explicit action so statuses the classifier does not know
// survive verbatim.
func rowPayload(rec map[string]string) map[string]any {
	status := rec[colStatus]
	action := status
	if action == "" {
		action = model.TagUnknownStatus
	}

	tree := map[string]any{
		"client": map[string]any{
			"name":      rec[colName],
			"email":     rec[colEmail],
			"cellphone": rec[colPhone],
		},
		"sale": map[string]any{
			"id":             rec[colSaleID],
			"status":         status,
			"amount":         rec[colGross],
			"seller_balance": rec[colNet],
			"created_at":     rec[colDate],
		},
		"product": map[string]any{"name": rec[colProduct]},
		"acao":    action,
	}

	utms := map[string]any{}
	for _, k := range []string{"utm_source", "utm_medium", "utm_campaign", "utm_content", "utm_term"} {
		if v := rec[k]; v != "" {
			utms[k] = v
		}
	}
	if len(utms) > 0 {
		tree["utms"] = utms
	}
	return tree
}

// provenance collects the non-canonical columns of a row, dropping blanks.
func provenance(rec map[string]string, byProduct bool) map[string]any {
	out := map[string]any{}
	for col, v := range rec {
		if v == "" || canonicalColumns[col] {
			continue
		}
		key, ok := provenanceColumns[col]
		if !ok {
			key = strings.ReplaceAll(col, " ", "_")
		}
		out[key] = v
	}
	if d := normalize.Date(rec[colPaymentDate]); d != "" {
		out["data_pagamento"] = d
	}
	if byProduct {
		out["tipo_produto"] = model.ProductTypeOrderBump
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
