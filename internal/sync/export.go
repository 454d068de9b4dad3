package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/alfredjeanlab/certflow/internal/model"
	"github.com/alfredjeanlab/certflow/internal/store"
)

// exportPage is the page size used when walking the certificate table.
const exportPage = 200

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version          string    `json:"version"`
	Type             string    `json:"type"`
	Timestamp        time.Time `json:"timestamp"`
	CertificateCount int       `json:"certificate_count"`
	DispatchCount    int       `json:"dispatch_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// certificateRecord is a certificate with its dispatch log embedded.
type certificateRecord struct {
	*model.Certificate
	Dispatches []*model.Dispatch `json:"dispatches,omitempty"`
}

// ExportJSONL writes every certificate from the store as JSONL to w,
// sorted by ID, each with its dispatch history.
func ExportJSONL(ctx context.Context, s store.Store, w io.Writer, now time.Time) error {
	var certs []*model.Certificate
	for offset := 0; ; offset += exportPage {
		page, total, err := s.ListCertificates(ctx, model.CertificateFilter{Limit: exportPage, Offset: offset})
		if err != nil {
			return fmt.Errorf("list certificates: %w", err)
		}
		certs = append(certs, page...)
		if len(page) == 0 || offset+len(page) >= total {
			break
		}
	}

	recs := make([]certificateRecord, len(certs))
	dispatches := 0
	for i, c := range certs {
		ds, err := s.ListDispatches(ctx, c.ID)
		if err != nil {
			return fmt.Errorf("list dispatches for %s: %w", c.ID, err)
		}
		recs[i] = certificateRecord{Certificate: c, Dispatches: ds}
		dispatches += len(ds)
	}

	sort.Slice(recs, func(i, j int) bool {
		return recs[i].ID < recs[j].ID
	})

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:          "1",
		Type:             "header",
		Timestamp:        now.UTC(),
		CertificateCount: len(recs),
		DispatchCount:    dispatches,
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, r := range recs {
		if err := enc.Encode(record{Type: "certificate", Data: r}); err != nil {
			return fmt.Errorf("encode certificate %s: %w", r.ID, err)
		}
	}
	return nil
}
