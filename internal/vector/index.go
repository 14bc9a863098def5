// Package vector provides the semantic receipt index: receipt identifiers
// mapped to a document string, a 384-dimensional embedding and a metadata
// mapping. Two interchangeable back-ends satisfy the contract, an in-memory
// one and a persistent on-disk one.
package vector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"bookkeeper-api/internal/models"
)

// Entry is one indexed receipt
type Entry struct {
	ID       int64             `json:"id"`
	Document string            `json:"document"`
	Vector   []float32         `json:"vector"`
	Metadata map[string]string `json:"metadata"`
}

// Result is one search hit
type Result struct {
	ID         int64
	Similarity float32
	Metadata   map[string]string
}

// Index is the capability set both back-ends provide. Add replaces an
// existing entry with the same ID.
type Index interface {
	Add(ctx context.Context, entry Entry) error
	Remove(ctx context.Context, id int64) error
	Search(ctx context.Context, query []float32, k int, filter map[string]string) ([]Result, error)
	IDs(ctx context.Context) ([]int64, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// BuildDocument renders the fixed document template a receipt is embedded
// under: vendor, date, total, category and the line-item descriptions.
func BuildDocument(receipt *models.Receipt) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Quittung von %s\n", receipt.VendorName)
	fmt.Fprintf(&b, "Datum: %s\n", receipt.Date.Format("2006-01-02"))
	fmt.Fprintf(&b, "Gesamtbetrag: %.2f %s\n", receipt.TotalAmount, receipt.Currency)
	if category := receipt.GetCategory(); category != "" {
		fmt.Fprintf(&b, "Kategorie: %s\n", category)
	}
	if len(receipt.LineItems) > 0 {
		b.WriteString("Positionen:\n")
		for _, li := range receipt.LineItems {
			fmt.Fprintf(&b, "- %s: %.2f %s\n", li.Description, li.LineTotal, receipt.Currency)
		}
	}

	return b.String()
}

// BuildMetadata renders the metadata mapping an entry carries for filtering
func BuildMetadata(receipt *models.Receipt) map[string]string {
	return map[string]string{
		"vendor":   models.NormalizeVendor(receipt.VendorName),
		"category": strings.ToLower(receipt.GetCategory()),
		"total":    fmt.Sprintf("%.2f", receipt.TotalAmount),
		"date":     receipt.Date.Format("2006-01-02"),
		"flagged":  fmt.Sprintf("%t", receipt.Flags.Any()),
	}
}

// Normalize scales the vector to unit length in place and returns it.
// Zero vectors are returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}

	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
	return v
}

// Cosine computes the cosine similarity of two vectors after L2 normalization
func Cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}

	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// matchesFilter checks the equality conjunction over metadata keys
func matchesFilter(metadata, filter map[string]string) bool {
	for key, want := range filter {
		if metadata[key] != want {
			return false
		}
	}
	return true
}

// rank orders results by descending similarity, ties by descending ID, and
// truncates to k
func rank(results []Result, k int) []Result {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].ID > results[j].ID
	})

	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results
}
