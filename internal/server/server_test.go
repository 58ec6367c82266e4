package server

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"

	"boipoka/pkg/domain"
)

func bookForm(t *testing.T, meta string, filename string, content []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if meta != "" {
		if err := mw.WriteField("data", meta); err != nil {
			t.Fatalf("write data field: %v", err)
		}
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("create file field: %v", err)
		}
		if _, err := fw.Write(content); err != nil {
			t.Fatalf("write file content: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func doForm(t *testing.T, method, url string, body io.Reader, contentType string, cookie *http.Cookie) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", contentType)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestRootBanner(t *testing.T) {
	env := newTestEnv(t)
	resp := doRequest(t, http.MethodGet, env.srv.URL+"/", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "Boipoka ebook server is running") {
		t.Fatalf("unexpected banner: %q", body)
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	resp := doRequest(t, http.MethodGet, env.srv.URL+"/healthz", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body := decodeBody(t, resp); body["status"] != "ok" {
		t.Fatalf("unexpected health body: %v", body)
	}
}

func TestCreateBookAndFetch(t *testing.T) {
	env := newTestEnv(t)
	body, contentType := bookForm(t, `{"title":"Feluda Somogro","author":"Satyajit Ray"}`, "feluda.pdf", []byte("%PDF-1.4 fake"))

	resp := doForm(t, http.MethodPost, env.srv.URL+"/books", body, contentType, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var created domain.Book
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode created book: %v", err)
	}
	if created.ID == "" || created.Title != "Feluda Somogro" {
		t.Fatalf("unexpected book: %+v", created)
	}
	if !strings.HasPrefix(created.FileURL, "https://objects.test/books/") {
		t.Fatalf("expected public object URL, got %q", created.FileURL)
	}

	resp = doRequest(t, http.MethodGet, env.srv.URL+"/books", nil, nil)
	var books []domain.Book
	if err := json.NewDecoder(resp.Body).Decode(&books); err != nil {
		t.Fatalf("decode book list: %v", err)
	}
	if len(books) != 1 || books[0].ID != created.ID {
		t.Fatalf("unexpected listing: %+v", books)
	}

	resp = doRequest(t, http.MethodGet, env.srv.URL+"/book/"+created.ID, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var fetched domain.Book
	if err := json.NewDecoder(resp.Body).Decode(&fetched); err != nil {
		t.Fatalf("decode book: %v", err)
	}
	if fetched.Author != "Satyajit Ray" {
		t.Fatalf("unexpected book: %+v", fetched)
	}
}

func TestCreateBookWithoutFileIs400(t *testing.T) {
	env := newTestEnv(t)
	body, contentType := bookForm(t, `{"title":"No File"}`, "", nil)

	resp := doForm(t, http.MethodPost, env.srv.URL+"/books", body, contentType, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if out := decodeBody(t, resp); out["error"] != "book file is required" {
		t.Fatalf("unexpected error message: %v", out)
	}

	list := doRequest(t, http.MethodGet, env.srv.URL+"/books", nil, nil)
	var books []domain.Book
	if err := json.NewDecoder(list.Body).Decode(&books); err != nil {
		t.Fatalf("decode book list: %v", err)
	}
	if len(books) != 0 {
		t.Fatalf("no book should be persisted, got %+v", books)
	}
}

func TestCreateBookRejectsUnsupportedExtension(t *testing.T) {
	env := newTestEnv(t)
	body, contentType := bookForm(t, `{"title":"Malicious"}`, "payload.exe", []byte("MZ"))

	resp := doForm(t, http.MethodPost, env.srv.URL+"/books", body, contentType, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if out := decodeBody(t, resp); out["error"] != "unsupported file type" {
		t.Fatalf("unexpected error message: %v", out)
	}
}

func TestGetUnknownBookIs404(t *testing.T) {
	env := newTestEnv(t)
	resp := doRequest(t, http.MethodGet, env.srv.URL+"/book/missing", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestUpdateBookWithoutFileKeepsURL(t *testing.T) {
	env := newTestEnv(t)
	env.seedBook(t, "b1")
	env.seedUser(t, "admin@x.com", domain.RoleAdmin)

	body, contentType := bookForm(t, `{"title":"Renamed"}`, "", nil)
	resp := doForm(t, http.MethodPatch, env.srv.URL+"/book/b1", body, contentType, env.sessionCookie(t, "admin@x.com"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var updated domain.Book
	if err := json.NewDecoder(resp.Body).Decode(&updated); err != nil {
		t.Fatalf("decode book: %v", err)
	}
	if updated.Title != "Renamed" {
		t.Fatalf("title not updated: %+v", updated)
	}
	if updated.FileURL != "https://objects.test/books/b1" {
		t.Fatalf("file URL must be retained, got %q", updated.FileURL)
	}
}

func TestReadingStateScenario(t *testing.T) {
	env := newTestEnv(t)
	env.seedBook(t, "b1")
	url := env.srv.URL + "/my-books"

	// First wishlist succeeds.
	resp := doRequest(t, http.MethodPut, url, strings.NewReader(`{"email":"r@x.com","bookId":"b1","status":"wishlist"}`), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if out := decodeBody(t, resp); out["message"] != "Book added to wishlist" {
		t.Fatalf("unexpected message: %v", out)
	}

	// Repeat wishlist is rejected with the exact message.
	resp = doRequest(t, http.MethodPut, url, strings.NewReader(`{"email":"r@x.com","bookId":"b1","status":"wishlist"}`), nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if out := decodeBody(t, resp); out["error"] != "Book already in Wishlist" {
		t.Fatalf("unexpected message: %v", out)
	}

	// Promote to read.
	resp = doRequest(t, http.MethodPut, url, strings.NewReader(`{"email":"r@x.com","bookId":"b1","status":"read"}`), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if out := decodeBody(t, resp); out["message"] != "Book marked as read" {
		t.Fatalf("unexpected message: %v", out)
	}

	// Read absorbs further wishlist attempts.
	resp = doRequest(t, http.MethodPut, url, strings.NewReader(`{"email":"r@x.com","bookId":"b1","status":"wishlist"}`), nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if out := decodeBody(t, resp); out["error"] != "Already marked as Read. Cannot add to Wishlist." {
		t.Fatalf("unexpected message: %v", out)
	}

	// The listing shows a single record in the read state.
	resp = doRequest(t, http.MethodGet, env.srv.URL+"/my-books/r@x.com", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var states []domain.ReadingState
	if err := json.NewDecoder(resp.Body).Decode(&states); err != nil {
		t.Fatalf("decode states: %v", err)
	}
	if len(states) != 1 || states[0].Status != domain.ReadingRead {
		t.Fatalf("unexpected states: %+v", states)
	}
}

func TestUpsertUserEndpoint(t *testing.T) {
	env := newTestEnv(t)
	payload := `{"email":"new@x.com","name":"New Reader","status":"Active"}`

	resp := doRequest(t, http.MethodPut, env.srv.URL+"/user", strings.NewReader(payload), nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 on first login, got %d", resp.StatusCode)
	}
	var created domain.User
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode user: %v", err)
	}
	if created.Role != domain.RoleUser {
		t.Fatalf("new users default to the user role, got %q", created.Role)
	}

	// Repeat login with a smuggled admin role is a no-op.
	resp = doRequest(t, http.MethodPut, env.srv.URL+"/user", strings.NewReader(`{"email":"new@x.com","name":"Impostor","role":"admin","status":"Active"}`), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on repeat login, got %d", resp.StatusCode)
	}
	var repeated domain.User
	if err := json.NewDecoder(resp.Body).Decode(&repeated); err != nil {
		t.Fatalf("decode user: %v", err)
	}
	if repeated.Role != domain.RoleUser || repeated.Name != "New Reader" {
		t.Fatalf("repeat login must not mutate the record: %+v", repeated)
	}
}

func TestGetUserReturnsNullWhenAbsent(t *testing.T) {
	env := newTestEnv(t)
	resp := doRequest(t, http.MethodGet, env.srv.URL+"/user/nobody@x.com", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if strings.TrimSpace(string(body)) != "null" {
		t.Fatalf("expected null body, got %q", body)
	}
}

func TestSecurityHeadersOnResponses(t *testing.T) {
	env := newTestEnv(t)
	resp := doRequest(t, http.MethodGet, env.srv.URL+"/healthz", nil, nil)
	if got := resp.Header.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected nosniff header, got %q", got)
	}
}
