package vector

import (
	"context"
	"math"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"bookkeeper-api/internal/models"
)

const testDim = 4

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

// vec pads a few leading components out to the test dimension
func vec(components ...float32) []float32 {
	v := make([]float32, testDim)
	copy(v, components)
	return v
}

func entry(id int64, v []float32, metadata map[string]string) Entry {
	return Entry{ID: id, Document: "doc", Vector: v, Metadata: metadata}
}

// runIndexContract exercises the behavior both back-ends must share
func runIndexContract(t *testing.T, open func(t *testing.T) Index) {
	ctx := context.Background()

	t.Run("search orders by similarity", func(t *testing.T) {
		idx := open(t)
		defer idx.Close()

		if err := idx.Add(ctx, entry(1, vec(1, 0), nil)); err != nil {
			t.Fatalf("Add() failed: %v", err)
		}
		if err := idx.Add(ctx, entry(2, vec(0.9, 0.1), nil)); err != nil {
			t.Fatalf("Add() failed: %v", err)
		}
		if err := idx.Add(ctx, entry(3, vec(0, 1), nil)); err != nil {
			t.Fatalf("Add() failed: %v", err)
		}

		results, err := idx.Search(ctx, vec(1, 0), 2, nil)
		if err != nil {
			t.Fatalf("Search() failed: %v", err)
		}
		if len(results) != 2 {
			t.Fatalf("Search() count = %d, want 2", len(results))
		}
		if results[0].ID != 1 || results[1].ID != 2 {
			t.Errorf("Search() order = [%d %d], want [1 2]", results[0].ID, results[1].ID)
		}
		if results[0].Similarity < results[1].Similarity {
			t.Error("similarities not descending")
		}
	})

	t.Run("ties break by descending ID", func(t *testing.T) {
		idx := open(t)
		defer idx.Close()

		for _, id := range []int64{5, 9, 2} {
			if err := idx.Add(ctx, entry(id, vec(1, 0), nil)); err != nil {
				t.Fatalf("Add() failed: %v", err)
			}
		}

		results, err := idx.Search(ctx, vec(1, 0), 3, nil)
		if err != nil {
			t.Fatalf("Search() failed: %v", err)
		}
		if results[0].ID != 9 || results[1].ID != 5 || results[2].ID != 2 {
			t.Errorf("tie order = [%d %d %d], want [9 5 2]",
				results[0].ID, results[1].ID, results[2].ID)
		}
	})

	t.Run("metadata filter restricts results", func(t *testing.T) {
		idx := open(t)
		defer idx.Close()

		if err := idx.Add(ctx, entry(1, vec(1, 0), map[string]string{"vendor": "rewe"})); err != nil {
			t.Fatalf("Add() failed: %v", err)
		}
		if err := idx.Add(ctx, entry(2, vec(1, 0), map[string]string{"vendor": "edeka"})); err != nil {
			t.Fatalf("Add() failed: %v", err)
		}

		results, err := idx.Search(ctx, vec(1, 0), 10, map[string]string{"vendor": "rewe"})
		if err != nil {
			t.Fatalf("Search() failed: %v", err)
		}
		if len(results) != 1 || results[0].ID != 1 {
			t.Errorf("filtered results = %v, want only ID 1", results)
		}
	})

	t.Run("add replaces and remove evicts", func(t *testing.T) {
		idx := open(t)
		defer idx.Close()

		if err := idx.Add(ctx, entry(1, vec(1, 0), nil)); err != nil {
			t.Fatalf("Add() failed: %v", err)
		}
		if err := idx.Add(ctx, entry(1, vec(0, 1), nil)); err != nil {
			t.Fatalf("Add() replace failed: %v", err)
		}

		count, err := idx.Count(ctx)
		if err != nil {
			t.Fatalf("Count() failed: %v", err)
		}
		if count != 1 {
			t.Errorf("Count() after replace = %d, want 1", count)
		}

		if err := idx.Remove(ctx, 1); err != nil {
			t.Fatalf("Remove() failed: %v", err)
		}
		if err := idx.Remove(ctx, 1); err != nil {
			t.Errorf("Remove() of missing ID should be a no-op, got %v", err)
		}

		ids, err := idx.IDs(ctx)
		if err != nil {
			t.Fatalf("IDs() failed: %v", err)
		}
		if len(ids) != 0 {
			t.Errorf("IDs() after remove = %v, want empty", ids)
		}
	})

	t.Run("dimension mismatch is rejected", func(t *testing.T) {
		idx := open(t)
		defer idx.Close()

		if err := idx.Add(ctx, entry(1, []float32{1, 0}, nil)); err == nil {
			t.Error("Add() with wrong dimension should fail")
		}
		if _, err := idx.Search(ctx, []float32{1, 0}, 5, nil); err == nil {
			t.Error("Search() with wrong dimension should fail")
		}
	})
}

func TestMemoryIndex_Contract(t *testing.T) {
	runIndexContract(t, func(t *testing.T) Index {
		return NewMemoryIndex(testDim, quietLogger())
	})
}

func TestPersistentIndex_Contract(t *testing.T) {
	runIndexContract(t, func(t *testing.T) Index {
		dir, err := os.MkdirTemp("", "vector_test_*")
		if err != nil {
			t.Fatalf("Failed to create temp dir: %v", err)
		}
		t.Cleanup(func() { os.RemoveAll(dir) })

		idx, err := OpenPersistentIndex(dir, testDim, quietLogger())
		if err != nil {
			t.Fatalf("OpenPersistentIndex() failed: %v", err)
		}
		return idx
	})
}

func TestPersistentIndex_SurvivesReopen(t *testing.T) {
	dir, err := os.MkdirTemp("", "vector_test_*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	ctx := context.Background()

	idx, err := OpenPersistentIndex(dir, testDim, quietLogger())
	if err != nil {
		t.Fatalf("OpenPersistentIndex() failed: %v", err)
	}
	if err := idx.Add(ctx, entry(42, vec(1, 0), map[string]string{"vendor": "rewe"})); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	reopened, err := OpenPersistentIndex(dir, testDim, quietLogger())
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	ids, err := reopened.IDs(ctx)
	if err != nil {
		t.Fatalf("IDs() failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != 42 {
		t.Errorf("IDs() after reopen = %v, want [42]", ids)
	}

	results, err := reopened.Search(ctx, vec(1, 0), 1, nil)
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	if len(results) != 1 || results[0].Metadata["vendor"] != "rewe" {
		t.Errorf("metadata lost across reopen: %v", results)
	}
}

func TestPersistentIndex_SkipsCorruptFiles(t *testing.T) {
	dir, err := os.MkdirTemp("", "vector_test_*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	ctx := context.Background()

	idx, err := OpenPersistentIndex(dir, testDim, quietLogger())
	if err != nil {
		t.Fatalf("OpenPersistentIndex() failed: %v", err)
	}
	if err := idx.Add(ctx, entry(1, vec(1, 0), nil)); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	idx.Close()

	if err := os.WriteFile(dir+"/999.json", []byte("{not json"), 0644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}

	reopened, err := OpenPersistentIndex(dir, testDim, quietLogger())
	if err != nil {
		t.Fatalf("reopen with corrupt file failed: %v", err)
	}
	defer reopened.Close()

	ids, _ := reopened.IDs(ctx)
	if len(ids) != 1 || ids[0] != 1 {
		t.Errorf("IDs() = %v, want corrupt entry skipped and [1] kept", ids)
	}
}

func TestNormalizeAndCosine(t *testing.T) {
	v := Normalize([]float32{3, 4})
	length := math.Sqrt(float64(v[0]*v[0] + v[1]*v[1]))
	if math.Abs(length-1.0) > 1e-6 {
		t.Errorf("normalized length = %v, want 1", length)
	}

	a := Normalize([]float32{1, 0})
	b := Normalize([]float32{1, 0})
	if sim := Cosine(a, b); math.Abs(float64(sim)-1.0) > 1e-6 {
		t.Errorf("Cosine(identical) = %v, want 1", sim)
	}

	c := Normalize([]float32{0, 1})
	if sim := Cosine(a, c); math.Abs(float64(sim)) > 1e-6 {
		t.Errorf("Cosine(orthogonal) = %v, want 0", sim)
	}
}

func TestBuildDocument(t *testing.T) {
	r := models.NewReceipt("REWE Markt", time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), 23.80, 3.80, "EUR")
	r.SetCategory("groceries")
	r.LineItems = []models.LineItem{
		{Description: "Milch", Quantity: 2, UnitPrice: 1.19, LineTotal: 2.38},
	}

	doc := BuildDocument(r)

	for _, want := range []string{
		"Quittung von REWE Markt",
		"Datum: 2024-03-10",
		"Gesamtbetrag: 23.80 EUR",
		"Kategorie: groceries",
		"- Milch: 2.38 EUR",
	} {
		if !strings.Contains(doc, want) {
			t.Errorf("document missing %q:\n%s", want, doc)
		}
	}
}

func TestBuildMetadata(t *testing.T) {
	r := models.NewReceipt("REWE", time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), 23.80, 3.80, "EUR")
	r.Flags.Suspicious = true

	metadata := BuildMetadata(r)
	if metadata["vendor"] != "rewe" {
		t.Errorf("vendor = %q, want normalized form", metadata["vendor"])
	}
	if metadata["flagged"] != "true" {
		t.Errorf("flagged = %q, want true", metadata["flagged"])
	}
	if metadata["date"] != "2024-03-10" {
		t.Errorf("date = %q, want 2024-03-10", metadata["date"])
	}
}
