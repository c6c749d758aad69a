package router

import "testing"

func TestRouterBasic(t *testing.T) {
	r := New[string]()

	r.Add("GET", "/", "root")
	r.Add("GET", "/hello", "hello")
	r.Add("GET", "/hello/world", "hello-world")

	tests := []struct {
		path        string
		shouldMatch bool
	}{
		{"/", true},
		{"/hello", true},
		{"/hello/world", true},
		{"/notfound", false},
	}

	for _, tt := range tests {
		_, _, ok := r.Find("GET", tt.path)
		if ok != tt.shouldMatch {
			t.Errorf("path %s: expected match=%v, got match=%v", tt.path, tt.shouldMatch, ok)
		}
	}
}

func TestRouterPriority(t *testing.T) {
	r := New[string]()

	r.Add("GET", "/user/admin", "exact")
	r.Add("GET", "/user/:id", "param")

	tests := []struct {
		path         string
		shouldMatch  bool
		isExactMatch bool
	}{
		{"/user/admin", true, true},
		{"/user/123", true, false},
	}

	for _, tt := range tests {
		v, params, ok := r.Find("GET", tt.path)
		if ok != tt.shouldMatch {
			t.Errorf("path %s: expected match=%v, got match=%v", tt.path, tt.shouldMatch, ok)
		}
		if !tt.shouldMatch {
			continue
		}
		_, hasParam := params["id"]
		if tt.isExactMatch && hasParam {
			t.Errorf("path %s: should be exact match, but got params", tt.path)
		}
		if !tt.isExactMatch && !hasParam {
			t.Errorf("path %s: should be param match, but no params", tt.path)
		}
		if tt.isExactMatch && v != "exact" {
			t.Errorf("path %s: expected exact value, got %q", tt.path, v)
		}
	}
}

func TestRouterCatchAll(t *testing.T) {
	r := New[string]()
	r.Add("GET", "/static/*rest", "static")

	v, params, ok := r.Find("GET", "/static/css/app.css")
	if !ok || v != "static" {
		t.Fatalf("expected catch-all match, got ok=%v v=%q", ok, v)
	}
	if params["rest"] != "css/app.css" {
		t.Errorf("expected captured rest=css/app.css, got %q", params["rest"])
	}
}

func BenchmarkRouterStatic(b *testing.B) {
	r := New[string]()
	r.Add("GET", "/hello/world", "handler")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r.Find("GET", "/hello/world")
	}
}

func BenchmarkRouterParam(b *testing.B) {
	r := New[string]()
	r.Add("GET", "/user/:id", "handler")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r.Find("GET", "/user/123")
	}
}
