package admin

import (
	"encoding/json"
	"net/http"
	"sort"

	"astrond/cluster/internal/dc"
)

// FieldDoc describes one DC field for the schema catalog, mirroring the
// teacher's ControlDoc shape (a flat, JSON-friendly description of
// something otherwise only readable by parsing source).
type FieldDoc struct {
	Name      string `json:"name"`
	Index     uint16 `json:"index"`
	Type      string `json:"type"`
	Required  bool   `json:"required,omitempty"`
	Broadcast bool   `json:"broadcast,omitempty"`
	OwnSend   bool   `json:"ownsend,omitempty"`
	ClSend    bool   `json:"clsend,omitempty"`
	Ram       bool   `json:"ram,omitempty"`
	DB        bool   `json:"db,omitempty"`
}

// ClassDoc describes one loaded DC class and its fields.
type ClassDoc struct {
	Name   string     `json:"name"`
	Number uint16     `json:"number"`
	Fields []FieldDoc `json:"fields"`
}

// CatalogHandler serves the loaded DC schema as JSON documentation, adapted
// from the teacher's registerControlDocEndpoints: host the canonical
// description on the cluster process itself so tooling and tests can query
// it instead of re-parsing .dc files.
func (h *HandlerSet) CatalogHandler() http.HandlerFunc {
	type response struct {
		SchemaHash uint32     `json:"schema_hash"`
		Classes    []ClassDoc `json:"classes"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if h.deps.Registry == nil {
			http.Error(w, "schema not loaded", http.StatusServiceUnavailable)
			return
		}
		docs := buildCatalog(h.deps.Registry)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(response{SchemaHash: h.deps.Registry.Hash(), Classes: docs}); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

func buildCatalog(reg *dc.Registry) []ClassDoc {
	classes := reg.Classes()
	docs := make([]ClassDoc, 0, len(classes))
	for _, class := range classes {
		fields := make([]FieldDoc, 0, len(class.Inherited))
		for _, f := range class.Inherited {
			fields = append(fields, FieldDoc{
				Name:      f.Name,
				Index:     f.Index,
				Type:      f.Type.String(),
				Required:  f.Keywords.Required,
				Broadcast: f.Keywords.Broadcast,
				OwnSend:   f.Keywords.OwnSend,
				ClSend:    f.Keywords.ClSend,
				Ram:       f.Keywords.Ram,
				DB:        f.Keywords.DB,
			})
		}
		sort.SliceStable(fields, func(i, j int) bool { return fields[i].Index < fields[j].Index })
		docs = append(docs, ClassDoc{Name: class.Name, Number: class.Number, Fields: fields})
	}
	return docs
}
