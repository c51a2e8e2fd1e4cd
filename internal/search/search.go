package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/elastic/go-elasticsearch/v9"

	"github.com/Skotchmaster/pharmacy_shop/internal/backend"
	"github.com/Skotchmaster/pharmacy_shop/pkg/pagination"
)

var (
	ErrDisabled   = errors.New("search is not configured")
	ErrEmptyQuery = errors.New("empty query")
)

type Config struct {
	URL      string
	User     string
	Password string
	Index    string
}

// NewClient connects to Elasticsearch and checks it answers.
func NewClient(ctx context.Context, cfg Config, log *slog.Logger) (*elasticsearch.Client, error) {
	log.Info("es_connect", "url", cfg.URL)

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.User,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("create es client: %w", err)
	}

	res, err := client.Info(client.Info.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("es info: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("es info: %s: %s", res.Status(), body)
	}
	return client, nil
}

// document is the indexed shape of a medicine; the id lives in _id.
type document struct {
	Name        string  `json:"name"`
	GenericName string  `json:"genericName,omitempty"`
	Company     string  `json:"company,omitempty"`
	Category    string  `json:"category,omitempty"`
	Description string  `json:"description,omitempty"`
	Image       string  `json:"image,omitempty"`
	Price       float64 `json:"price"`
	Discount    float64 `json:"discount,omitempty"`
	Stock       int     `json:"stock"`
	SellerEmail string  `json:"sellerEmail,omitempty"`
}

func toDocument(m backend.Medicine) document {
	return document{
		Name:        m.Name,
		GenericName: m.GenericName,
		Company:     m.Company,
		Category:    m.Category,
		Description: m.Description,
		Image:       m.Image,
		Price:       m.Price,
		Discount:    m.Discount,
		Stock:       m.Stock,
		SellerEmail: m.SellerEmail,
	}
}

func (d document) medicine(id string) backend.Medicine {
	return backend.Medicine{
		ID:          id,
		Name:        d.Name,
		GenericName: d.GenericName,
		Company:     d.Company,
		Category:    d.Category,
		Description: d.Description,
		Image:       d.Image,
		Price:       d.Price,
		Discount:    d.Discount,
		Stock:       d.Stock,
		SellerEmail: d.SellerEmail,
	}
}

type Results struct {
	Total int64              `json:"total"`
	Page  int                `json:"page"`
	Size  int                `json:"size"`
	Pages int                `json:"pages"`
	Items []backend.Medicine `json:"items"`
}

// Index searches medicines in one Elasticsearch index. A nil *Index means
// search is disabled.
type Index struct {
	es   *elasticsearch.Client
	name string
}

func New(es *elasticsearch.Client, name string) *Index {
	return &Index{es: es, name: name}
}

func (ix *Index) Enabled() bool { return ix != nil && ix.es != nil }

func (ix *Index) Search(ctx context.Context, query string, page pagination.Page) (Results, error) {
	if !ix.Enabled() {
		return Results{}, ErrDisabled
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return Results{}, ErrEmptyQuery
	}

	body := map[string]any{
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":     query,
				"fields":    []string{"name^2", "genericName", "company", "category"},
				"fuzziness": "AUTO",
			},
		},
		"from": page.Offset(),
		"size": page.Size,
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return Results{}, fmt.Errorf("encode query: %w", err)
	}

	res, err := ix.es.Search(
		ix.es.Search.WithContext(ctx),
		ix.es.Search.WithIndex(ix.name),
		ix.es.Search.WithBody(&buf),
	)
	if err != nil {
		return Results{}, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		raw, _ := io.ReadAll(res.Body)
		return Results{}, fmt.Errorf("search: %s: %s", res.Status(), raw)
	}

	var r struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				ID     string   `json:"_id"`
				Source document `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return Results{}, fmt.Errorf("decode search: %w", err)
	}

	items := make([]backend.Medicine, len(r.Hits.Hits))
	for i, hit := range r.Hits.Hits {
		items[i] = hit.Source.medicine(hit.ID)
	}
	return Results{
		Total: r.Hits.Total.Value,
		Page:  page.Number,
		Size:  page.Size,
		Pages: page.Pages(r.Hits.Total.Value),
		Items: items,
	}, nil
}

// Put indexes or replaces a medicine so seller edits show up in search.
func (ix *Index) Put(ctx context.Context, m backend.Medicine) error {
	if !ix.Enabled() {
		return nil
	}
	if m.ID == "" {
		return errors.New("index medicine: empty id")
	}
	payload, err := json.Marshal(toDocument(m))
	if err != nil {
		return fmt.Errorf("encode medicine: %w", err)
	}
	res, err := ix.es.Index(ix.name, bytes.NewReader(payload),
		ix.es.Index.WithContext(ctx),
		ix.es.Index.WithDocumentID(m.ID),
	)
	if err != nil {
		return fmt.Errorf("index medicine: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("index medicine: %s", res.Status())
	}
	return nil
}

func (ix *Index) Remove(ctx context.Context, id string) error {
	if !ix.Enabled() {
		return nil
	}
	res, err := ix.es.Delete(ix.name, id, ix.es.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("delete medicine: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != 404 {
		return fmt.Errorf("delete medicine: %s", res.Status())
	}
	return nil
}
