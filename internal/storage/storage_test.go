package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/RecoveryAshes/F95Crawler/internal/utils"
	"github.com/rs/zerolog"
)

func TestJSONStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "published.json")

	s := NewJSONStore(path)
	ids, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() 文件不存在时不应报错: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("Load() = %v, want 空", ids)
	}

	if err := s.Append(ctx, []string{"200", "100"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := s.Append(ctx, []string{"100", "300"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	// 新实例重新读取
	ids, err = NewJSONStore(path).Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := []string{"100", "200", "300"}
	if fmt.Sprint(ids) != fmt.Sprint(want) {
		t.Errorf("Load() = %v, want %v", ids, want)
	}
}

func TestSQLStore_SQLite(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "published.db")

	s, err := OpenSQLStore(ctx, "sqlite", dsn)
	if err != nil {
		t.Fatalf("OpenSQLStore() error = %v", err)
	}

	if err := s.Append(ctx, []string{"1", "2"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	// 重复ID忽略
	if err := s.Append(ctx, []string{"2", "3"}); err != nil {
		t.Fatalf("Append() 重复ID error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	s, err = OpenSQLStore(ctx, "sqlite", dsn)
	if err != nil {
		t.Fatalf("重新打开失败: %v", err)
	}
	defer s.Close()

	ids, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if fmt.Sprint(ids) != "[1 2 3]" {
		t.Errorf("Load() = %v, want [1 2 3]", ids)
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{"json", Options{Driver: "json", Path: filepath.Join(t.TempDir(), "s.json")}, false},
		{"默认json", Options{Path: filepath.Join(t.TempDir(), "s.json")}, false},
		{"none", Options{Driver: "none"}, false},
		{"sqlite", Options{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "s.db")}, false},
		{"未知驱动", Options{Driver: "redis"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Open(ctx, tt.opts)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Open() error = %v, wantErr %v", err, tt.wantErr)
			}
			if s != nil {
				s.Close()
			}
		})
	}
}

// existingServer 模拟 existing-threads 接口, total个ID, 奇数为数字偶数为字符串
func existingServer(t *testing.T, total int, apiKey string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != apiKey {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		ids := []interface{}{}
		for i := offset; i < offset+limit && i < total; i++ {
			if i%2 == 0 {
				ids = append(ids, strconv.Itoa(1000+i))
			} else {
				ids = append(ids, 1000+i)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"thread_ids": ids})
	}))
}

func TestRemoteSource_FetchExisting(t *testing.T) {
	srv := existingServer(t, 25, "secret")
	defer srv.Close()

	r := NewRemoteSource(srv.Client(), srv.URL+"/wp-json/f95-crawler/v1/existing-threads", "secret", 10)
	ids, err := r.FetchExisting(context.Background())
	if err != nil {
		t.Fatalf("FetchExisting() error = %v", err)
	}
	if len(ids) != 25 {
		t.Fatalf("FetchExisting() 返回 %d 个, want 25", len(ids))
	}
	if ids[0] != "1000" || ids[1] != "1001" || ids[24] != "1024" {
		t.Errorf("ID解析错误: %v", ids)
	}
}

func TestRemoteSource_Unauthorized(t *testing.T) {
	srv := existingServer(t, 5, "secret")
	defer srv.Close()

	r := NewRemoteSource(srv.Client(), srv.URL, "wrong", 10)
	ids, err := r.FetchExisting(context.Background())
	if err == nil {
		t.Fatal("FetchExisting() 期望返回错误")
	}
	if len(ids) != 0 {
		t.Errorf("FetchExisting() = %v, want 空", ids)
	}
}

func TestRemoteSource_IgnoredOffset(t *testing.T) {
	// 服务端忽略offset, 始终返回同一页
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"thread_ids":[1,2]}`)
	}))
	defer srv.Close()

	r := NewRemoteSource(srv.Client(), srv.URL, "k", 2)
	ids, err := r.FetchExisting(context.Background())
	if err != nil {
		t.Fatalf("FetchExisting() error = %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("FetchExisting() = %v, want [1 2]", ids)
	}
}

type fakeRemote struct {
	ids []string
	err error
}

func (f fakeRemote) FetchExisting(context.Context) ([]string, error) {
	return f.ids, f.err
}

type memStore struct {
	loaded   []string
	appended [][]string
	failLoad bool
	closed   bool
}

func (m *memStore) Load(context.Context) ([]string, error) {
	if m.failLoad {
		return nil, errors.New("磁盘错误")
	}
	return m.loaded, nil
}

func (m *memStore) Append(_ context.Context, ids []string) error {
	m.appended = append(m.appended, append([]string(nil), ids...))
	return nil
}

func (m *memStore) Close() error {
	m.closed = true
	return nil
}

func TestTracker(t *testing.T) {
	ctx := context.Background()
	store := &memStore{loaded: []string{"1", "2"}}
	tr := NewTracker(store, fakeRemote{ids: []string{"2", "3"}})

	if err := tr.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if tr.Len() != 3 {
		t.Errorf("Len() = %d, want 3", tr.Len())
	}
	for _, id := range []string{"1", "2", "3"} {
		if !tr.IsDuplicate(id) {
			t.Errorf("IsDuplicate(%s) = false", id)
		}
	}
	if tr.IsDuplicate("4") {
		t.Error("IsDuplicate(4) = true")
	}

	tr.MarkPublished("4")
	tr.MarkPublished("4")
	tr.MarkPublished("1") // 已存在, 不再写入
	if !tr.IsDuplicate("4") {
		t.Error("MarkPublished 后应为重复")
	}
	if err := tr.Save(ctx); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if len(store.appended) != 1 || fmt.Sprint(store.appended[0]) != "[4]" {
		t.Errorf("Append 调用 = %v, want [[4]]", store.appended)
	}

	// 没有新ID时不写入
	if err := tr.Save(ctx); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if len(store.appended) != 1 {
		t.Errorf("空Save不应写入, Append 调用 %d 次", len(store.appended))
	}

	tr.Close()
	if !store.closed {
		t.Error("Close() 未关闭存储")
	}
}

func TestTracker_RemoteFailure(t *testing.T) {
	var buf bytes.Buffer
	old := utils.Logger
	utils.Logger = zerolog.New(&buf)
	defer func() { utils.Logger = old }()

	tr := NewTracker(&memStore{loaded: []string{"1", "2", "3"}}, fakeRemote{ids: []string{"9"}, err: errors.New("HTTP 500")})
	if err := tr.Load(context.Background()); err != nil {
		t.Fatalf("远端失败不应导致 Load 失败: %v", err)
	}
	if !tr.IsDuplicate("1") || !tr.IsDuplicate("9") {
		t.Error("应保留本地和远端已加载的ID")
	}
	// 警告中的数量是合并后的总数
	if !strings.Contains(buf.String(), "仅使用已加载的 4 个") {
		t.Errorf("警告数量错误, 日志: %s", buf.String())
	}
}

func TestTracker_LocalFailure(t *testing.T) {
	tr := NewTracker(&memStore{failLoad: true}, nil)
	if err := tr.Load(context.Background()); err == nil {
		t.Error("本地存储失败应返回错误")
	}
}
