package platform

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bytedance/sonic"

	"taskboard/records"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Options{BaseURL: srv.URL + "/", ProjectID: "proj-1", PublicKey: "pk-1"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestNewRequiresCredentials(t *testing.T) {
	if _, err := New(Options{BaseURL: "http://localhost"}); err == nil {
		t.Fatalf("expected error without credentials")
	}
}

func TestFetchRecordsSendsQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/records/task_c/fetch" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get(headerProjectID) != "proj-1" || r.Header.Get(headerPublicKey) != "pk-1" {
			t.Errorf("missing credentials headers: %v", r.Header)
		}
		body, _ := io.ReadAll(r.Body)
		var q records.Query
		if err := sonic.Unmarshal(body, &q); err != nil {
			t.Errorf("decode query: %v", err)
		}
		if names := q.FieldNames(); len(names) != 2 || names[0] != "Id" || names[1] != "title_c" {
			t.Errorf("unexpected fields: %v", names)
		}
		if len(q.OrderBy) != 1 || q.OrderBy[0].FieldName != "Id" || q.OrderBy[0].SortType != records.Desc {
			t.Errorf("unexpected order: %+v", q.OrderBy)
		}
		if q.PagingInfo == nil || q.PagingInfo.Limit != 100 {
			t.Errorf("unexpected paging: %+v", q.PagingInfo)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":[{"Id":2,"title_c":"b"},{"Id":1,"title_c":"a"}]}`))
	})

	recs, err := c.FetchRecords(context.Background(), "task_c", records.Query{
		Fields:     records.Fields("Id", "title_c"),
		OrderBy:    []records.OrderBy{{FieldName: "Id", SortType: records.Desc}},
		PagingInfo: &records.PagingInfo{Limit: 100},
	})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if id, _ := recs[0].ID(); id != 2 || recs[0].String("title_c") != "b" {
		t.Fatalf("unexpected first record: %v", recs[0])
	}
}

func TestFetchRecordsNullData(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"data":null}`))
	})
	recs, err := c.FetchRecords(context.Background(), "task_c", records.Query{})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if recs == nil || len(recs) != 0 {
		t.Fatalf("expected empty slice, got %#v", recs)
	}
}

func TestPlatformFailureBecomesError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"message":"table missing"}`))
	})
	_, err := c.FetchRecords(context.Background(), "task_c", records.Query{})
	var pe *records.PlatformError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PlatformError, got %v", err)
	}
	if pe.Message != "table missing" || pe.Operation != "fetch" {
		t.Fatalf("unexpected platform error: %+v", pe)
	}
}

func TestHTTPFailureKeepsStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})
	_, err := c.CreateRecords(context.Background(), "task_c", []records.Record{{"Name": "x"}})
	var pe *records.PlatformError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PlatformError, got %v", err)
	}
	if pe.StatusCode != http.StatusBadGateway || pe.Message != "bad gateway" {
		t.Fatalf("unexpected platform error: %+v", pe)
	}
}

func TestGetRecordByIDNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/records/task_c/7/fetch" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"data":null}`))
	})
	if _, err := c.GetRecordByID(context.Background(), "task_c", 7, records.Query{}); !errors.Is(err, records.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for 404, got %v", err)
	}
	if _, err := c.GetRecordByID(context.Background(), "task_c", 8, records.Query{}); !errors.Is(err, records.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for null data, got %v", err)
	}
}

func TestWritesReturnPerRecordResults(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		switch r.Method {
		case http.MethodPut:
			var req writeRequest
			if err := sonic.Unmarshal(body, &req); err != nil || len(req.Records) != 2 {
				t.Errorf("unexpected update body: %s", body)
			}
			_, _ = w.Write([]byte(`{"success":true,"results":[
				{"success":true,"data":{"Id":1}},
				{"success":false,"message":"locked","errors":[{"fieldLabel":"title_c","message":"too long"}]}
			]}`))
		case http.MethodDelete:
			var req deleteRequest
			if err := sonic.Unmarshal(body, &req); err != nil || len(req.RecordIDs) != 1 || req.RecordIDs[0] != 3 {
				t.Errorf("unexpected delete body: %s", body)
			}
			_, _ = w.Write([]byte(`{"success":true,"results":[{"success":true}]}`))
		default:
			t.Errorf("unexpected method %s", r.Method)
		}
	})

	results, err := c.UpdateRecords(context.Background(), "task_c", []records.Record{{"Id": 1}, {"Id": 2}})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	ok, err := records.Split("update", "task_c", results)
	if len(ok) != 1 {
		t.Fatalf("expected one success, got %d", len(ok))
	}
	var be *records.BatchError
	if !errors.As(err, &be) || len(be.Failed) != 1 {
		t.Fatalf("expected batch error, got %v", err)
	}
	if msgs := be.Messages(); len(msgs) != 2 || msgs[0] != "title_c: too long" || msgs[1] != "locked" {
		t.Fatalf("unexpected messages: %v", msgs)
	}

	del, err := c.DeleteRecords(context.Background(), "task_c", []int64{3})
	if err != nil || len(del) != 1 || !del[0].Success {
		t.Fatalf("unexpected delete result %v, %v", del, err)
	}
}
