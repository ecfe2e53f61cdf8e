package crossref

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

const journalRecord = `<?xml version="1.0" encoding="UTF-8"?>
<doi_records>
  <doi_record>
    <crossref>
      <journal>
        <journal_metadata>
          <full_title>Proceedings of the IEEE</full_title>
        </journal_metadata>
        <journal_article publication_type="full_text">
          <titles>
            <title>Gradient-based learning applied to document recognition</title>
          </titles>
          <contributors>
            <person_name sequence="first" contributor_role="author">
              <given_name>Y.</given_name>
              <surname>Lecun</surname>
            </person_name>
            <person_name sequence="additional" contributor_role="author">
              <given_name>L.</given_name>
              <surname>Bottou</surname>
            </person_name>
            <person_name sequence="additional" contributor_role="editor">
              <given_name>E.</given_name>
              <surname>Ditor</surname>
            </person_name>
          </contributors>
          <publication_date media_type="print">
            <month>11</month>
            <year>1998</year>
          </publication_date>
        </journal_article>
      </journal>
    </crossref>
  </doi_record>
</doi_records>`

func TestResolve(t *testing.T) {
	t.Run("extracts the work fields from a journal record", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Accept") != unixrefContentType {
				t.Errorf("unexpected accept header: %s", r.Header.Get("Accept"))
			}
			w.Header().Set("Content-Type", unixrefContentType)
			fmt.Fprint(w, journalRecord)
		}))
		defer server.Close()

		client := NewClient(server.Client(), server.URL)

		got, err := client.Resolve(context.Background(), "10.1109/5.726791")
		if err != nil {
			t.Fatalf("failed to resolve metadata: %v", err)
		}

		wanted := &Work{
			Title:   "Gradient-based learning applied to document recognition",
			Journal: "Proceedings of the IEEE",
			Year:    "1998",
			Authors: []string{"Y. Lecun", "L. Bottou"},
		}
		if !reflect.DeepEqual(got, wanted) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", wanted, got)
		}
	})

	t.Run("reports not found for unregistered dois", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		client := NewClient(server.Client(), server.URL)

		if _, err := client.Resolve(context.Background(), "10.1000/unknown"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", ErrNotFound, err)
		}
	})

	t.Run("fails on unexpected status codes", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		client := NewClient(server.Client(), server.URL)

		if _, err := client.Resolve(context.Background(), "10.1000/182"); err == nil {
			t.Fatal("expected an error for a bad gateway response")
		}
	})

	t.Run("fails on malformed records", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "<doi_records><unclosed>")
		}))
		defer server.Close()

		client := NewClient(server.Client(), server.URL)

		if _, err := client.Resolve(context.Background(), "10.1000/182"); err == nil {
			t.Fatal("expected an error for a malformed record")
		}
	})
}

func TestWorkMetadata(t *testing.T) {
	t.Run("renders all fields", func(t *testing.T) {
		work := &Work{
			Title:   "A title",
			Journal: "A journal",
			Year:    "2001",
			Authors: []string{"A. Uthor"},
		}

		got := work.Metadata()
		wanted := map[string]any{
			"title":   "A title",
			"journal": "A journal",
			"year":    "2001",
			"authors": []any{"A. Uthor"},
		}
		if !reflect.DeepEqual(got, wanted) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", wanted, got)
		}
	})

	t.Run("omits empty fields", func(t *testing.T) {
		got := (&Work{Title: "A title"}).Metadata()
		wanted := map[string]any{"title": "A title"}
		if !reflect.DeepEqual(got, wanted) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", wanted, got)
		}
	})
}
