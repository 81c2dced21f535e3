package search

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	elasticsearch "github.com/elastic/go-elasticsearch/v8"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// searchResultSize caps the number of hits returned by one query.
const searchResultSize = 50

// Elastic implements Index backed by an Elasticsearch cluster.
type Elastic struct {
	client *elasticsearch.Client
	index  string
}

var _ Index = (*Elastic)(nil)

// ElasticConfig holds connection settings for the Elasticsearch index.
type ElasticConfig struct {
	Addresses []string
	Username  string
	Password  string
	Index     string
}

// NewElastic creates an Elasticsearch-backed Index. It does not contact the
// cluster; a dead cluster surfaces as per-operation errors that callers
// treat as fallback signals.
func NewElastic(cfg ElasticConfig) (*Elastic, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create elasticsearch client")
	}

	index := cfg.Index
	if index == "" {
		index = "products"
	}

	return &Elastic{client: client, index: index}, nil
}

func (e *Elastic) Enabled() bool { return true }

// Index writes doc under its ID, overwriting any previous version.
func (e *Elastic) Index(ctx context.Context, doc Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "encode document")
	}

	res, err := e.client.Index(e.index, bytes.NewReader(body),
		e.client.Index.WithDocumentID(doc.ID),
		e.client.Index.WithContext(ctx),
	)
	if err != nil {
		return errors.Wrapf(err, "index document %s", doc.ID)
	}
	defer res.Body.Close()

	if res.IsError() {
		return errors.Errorf("index document %s: %s", doc.ID, res.Status())
	}
	return nil
}

// Delete removes the document with the given ID. A missing document is not
// an error: deletes are idempotent.
func (e *Elastic) Delete(ctx context.Context, id string) error {
	res, err := e.client.Delete(e.index, id,
		e.client.Delete.WithContext(ctx),
	)
	if err != nil {
		return errors.Wrapf(err, "delete document %s", id)
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != 404 {
		return errors.Errorf("delete document %s: %s", id, res.Status())
	}
	return nil
}

// Search runs a case-insensitive substring match of q over document name and
// description.
func (e *Elastic) Search(ctx context.Context, q string) ([]Document, error) {
	res, err := e.client.Search(
		e.client.Search.WithContext(ctx),
		e.client.Search.WithIndex(e.index),
		e.client.Search.WithBody(bytes.NewReader(substringQuery(q))),
	)
	if err != nil {
		return nil, errors.Wrap(err, "search")
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, errors.Errorf("search: %s", res.Status())
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source Document `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, errors.Wrap(err, "decode search response")
	}

	docs := make([]Document, len(parsed.Hits.Hits))
	for i, hit := range parsed.Hits.Hits {
		docs[i] = hit.Source
	}
	return docs, nil
}

// Ping checks cluster reachability; used by the readiness probe.
func (e *Elastic) Ping(ctx context.Context) error {
	res, err := e.client.Ping(e.client.Ping.WithContext(ctx))
	if err != nil {
		return errors.Wrap(err, "ping")
	}
	defer res.Body.Close()

	if res.IsError() {
		return errors.Errorf("ping: %s", res.Status())
	}
	return nil
}

// substringQuery builds a bool-should query of two case-insensitive wildcard
// clauses, one per searchable field.
func substringQuery(q string) []byte {
	pattern := "*" + escapeWildcards(q) + "*"

	var w jx.Writer
	w.ObjStart()
	w.FieldStart("query")
	w.ObjStart()
	w.FieldStart("bool")
	w.ObjStart()
	w.FieldStart("should")
	w.ArrStart()
	for i, field := range []string{"name", "description"} {
		if i > 0 {
			w.Comma()
		}
		w.ObjStart()
		w.FieldStart("wildcard")
		w.ObjStart()
		w.FieldStart(field)
		w.ObjStart()
		w.FieldStart("value")
		w.Str(pattern)
		w.Comma()
		w.FieldStart("case_insensitive")
		w.Bool(true)
		w.ObjEnd()
		w.ObjEnd()
		w.ObjEnd()
	}
	w.ArrEnd()
	w.Comma()
	w.FieldStart("minimum_should_match")
	w.Int(1)
	w.ObjEnd()
	w.ObjEnd()
	w.Comma()
	w.FieldStart("size")
	w.Int(searchResultSize)
	w.ObjEnd()
	return w.Buf
}

// escapeWildcards neutralizes wildcard metacharacters in user input so the
// query stays a literal substring match.
func escapeWildcards(q string) string {
	q = strings.ReplaceAll(q, `\`, `\\`)
	q = strings.ReplaceAll(q, "*", `\*`)
	q = strings.ReplaceAll(q, "?", `\?`)
	return q
}
