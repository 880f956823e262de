package restdir

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/campusdesk/portal/core"
	"github.com/campusdesk/portal/core/directory"
)

const profilesTable = "profiles"

// Directory queries the hosted row store's REST API (PostgREST-style)
// with the service key.
type Directory struct {
	baseURL string
	key     string
	http    *http.Client
}

var _ directory.Repository = (*Directory)(nil)

func New(conf *core.Config) *Directory {
	return &Directory{
		baseURL: strings.TrimRight(conf.Directory.RestURL, "/"),
		key:     conf.Directory.RestKey,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type apiError struct {
	Message string `json:"message"`
	Details string `json:"details"`
	Code    string `json:"code"`
}

func (d *Directory) do(ctx context.Context, method, path string, body, out interface{}) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "marshalling request body")
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, d.baseURL+path, rdr)
	if err != nil {
		return errors.Wrap(err, "building request")
	}
	req = req.WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", d.key)
	req.Header.Set("Authorization", "Bearer "+d.key)
	if method == http.MethodPost {
		req.Header.Set("Prefer", "return=minimal")
	}

	res, err := d.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "calling role directory")
	}
	defer func() { _ = res.Body.Close() }()

	data, err := ioutil.ReadAll(res.Body)
	if err != nil {
		return errors.Wrap(err, "reading role directory response")
	}

	if res.StatusCode >= http.StatusBadRequest {
		var apiErr apiError
		_ = json.Unmarshal(data, &apiErr)
		if apiErr.Message != "" {
			return errors.Errorf("role directory: %s", apiErr.Message)
		}
		return errors.Errorf("role directory: %s", http.StatusText(res.StatusCode))
	}

	if out != nil && len(data) > 0 {
		if err = json.Unmarshal(data, out); err != nil {
			return errors.Wrap(err, "decoding role directory response")
		}
	}
	return nil
}

func idFilter(table, userID string) string {
	return "/" + table + "?id=eq." + url.QueryEscape(userID)
}

func (d *Directory) exists(ctx context.Context, table, userID string) (bool, error) {
	var rows []struct {
		ID string `json:"id"`
	}
	if err := d.do(ctx, http.MethodGet, idFilter(table, userID)+"&select=id&limit=1", nil, &rows); err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

func (d *Directory) ProfileReady(ctx context.Context, userID string) (bool, error) {
	return d.exists(ctx, profilesTable, userID)
}

func (d *Directory) HasRecord(ctx context.Context, table directory.Table, userID string) (bool, error) {
	return d.exists(ctx, string(table), userID)
}

func (d *Directory) GetStudent(ctx context.Context, userID string) (directory.Student, error) {
	var rows []directory.Student
	if err := d.do(ctx, http.MethodGet, idFilter(string(directory.Students), userID)+"&limit=1", nil, &rows); err != nil {
		return directory.Student{}, err
	}
	if len(rows) == 0 {
		return directory.Student{}, directory.ErrNotFound
	}
	return rows[0], nil
}

func (d *Directory) CreateStudent(ctx context.Context, student directory.Student) error {
	return errors.Wrap(
		d.do(ctx, http.MethodPost, "/"+string(directory.Students), student, nil),
		"inserting student record",
	)
}

func (d *Directory) GetTeacher(ctx context.Context, userID string) (directory.Teacher, error) {
	var rows []directory.Teacher
	if err := d.do(ctx, http.MethodGet, idFilter(string(directory.Teachers), userID)+"&limit=1", nil, &rows); err != nil {
		return directory.Teacher{}, err
	}
	if len(rows) == 0 {
		return directory.Teacher{}, directory.ErrNotFound
	}
	return rows[0], nil
}

func (d *Directory) CreateTeacher(ctx context.Context, teacher directory.Teacher) error {
	return errors.Wrap(
		d.do(ctx, http.MethodPost, "/"+string(directory.Teachers), teacher, nil),
		"inserting teacher record",
	)
}
