package cmd

import (
	"testing"

	"github.com/manicule/manicule/internal/store"
)

func TestPickIndexable(t *testing.T) {
	repo := func(name string, role store.RepoRole) store.Repository {
		return store.Repository{Owner: "acme", Name: name, Role: role}
	}

	tests := []struct {
		name       string
		repos      []store.Repository
		wantName   string
		wantHybrid bool
		wantOK     bool
	}{
		{
			name:       "single hybrid",
			repos:      []store.Repository{repo("site", store.RoleHybrid)},
			wantName:   "site",
			wantHybrid: true,
			wantOK:     true,
		},
		{
			name:     "main and docs pair",
			repos:    []store.Repository{repo("api", store.RoleMain), repo("docs", store.RoleDocs)},
			wantName: "api",
			wantOK:   true,
		},
		{
			name:   "main without docs",
			repos:  []store.Repository{repo("api", store.RoleMain)},
			wantOK: false,
		},
		{
			name:   "two mains",
			repos:  []store.Repository{repo("api", store.RoleMain), repo("cli", store.RoleMain), repo("docs", store.RoleDocs)},
			wantOK: false,
		},
		{
			name:   "hybrid mixed with main",
			repos:  []store.Repository{repo("site", store.RoleHybrid), repo("api", store.RoleMain), repo("docs", store.RoleDocs)},
			wantOK: false,
		},
		{
			name:   "no roles assigned",
			repos:  []store.Repository{repo("api", store.RoleIgnore)},
			wantOK: false,
		},
		{
			name:   "empty",
			repos:  nil,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, hybrid, ok := pickIndexable(tt.repos)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if got.Name != tt.wantName {
				t.Errorf("repo = %s, want %s", got.Name, tt.wantName)
			}
			if hybrid != tt.wantHybrid {
				t.Errorf("hybrid = %v, want %v", hybrid, tt.wantHybrid)
			}
		})
	}
}

func TestStatusStepsAreOrdered(t *testing.T) {
	order := []store.IndexStatus{
		store.StatusNone,
		store.StatusDownloading,
		store.StatusDownloaded,
		store.StatusIndexing,
		store.StatusCompleted,
	}
	for i, status := range order {
		if statusSteps[status] != i {
			t.Errorf("statusSteps[%s] = %d, want %d", status, statusSteps[status], i)
		}
	}
}
