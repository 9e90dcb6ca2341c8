package selector

import (
	"math/rand"
	"testing"

	"github.com/Denni-Wild/Subs-bot-sub000/models"
)

func newDefaultPool(t *testing.T) *Pool {
	t.Helper()
	pool, err := NewPool(DefaultModels())
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	return pool
}

func TestNewPool(t *testing.T) {
	tests := []struct {
		name    string
		models  []models.ModelDescriptor
		wantErr bool
	}{
		{"defaults", DefaultModels(), false},
		{"empty", nil, true},
		{"missing id", []models.ModelDescriptor{{Name: "x"}}, true},
		{"duplicate id", []models.ModelDescriptor{{ID: "a"}, {ID: "a"}}, true},
		{"name defaults to id", []models.ModelDescriptor{{ID: "a/b:free"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool, err := NewPool(tt.models)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewPool() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				for _, m := range pool.Models() {
					if m.Name == "" {
						t.Errorf("model %q has empty name", m.ID)
					}
				}
			}
		})
	}
}

func TestSessionRoundIsPermutation(t *testing.T) {
	pool := newDefaultPool(t)

	for seed := int64(0); seed < 20; seed++ {
		session := pool.NewSession(WithRand(rand.New(rand.NewSource(seed))))
		seen := make(map[int]bool)
		for i := 0; i < pool.Len(); i++ {
			idx := session.Next()
			if idx < 0 || idx >= pool.Len() {
				t.Fatalf("index %d out of range", idx)
			}
			if seen[idx] {
				t.Fatalf("seed %d: index %d picked twice in one round", seed, idx)
			}
			seen[idx] = true
		}
		if len(session.Used()) != pool.Len() {
			t.Errorf("expected full history, got %v", session.Used())
		}
	}
}

func TestSessionResetsAfterFullRound(t *testing.T) {
	pool := newDefaultPool(t)
	session := pool.NewSession(WithRand(rand.New(rand.NewSource(1))))

	for i := 0; i < pool.Len(); i++ {
		session.Next()
	}
	next := session.Next()

	used := session.Used()
	if len(used) != 1 || used[0] != next {
		t.Errorf("expected history [%d] after reset, got %v", next, used)
	}
}

func TestSessionsAreIndependent(t *testing.T) {
	pool := newDefaultPool(t)
	a := pool.NewSession()
	b := pool.NewSession()

	a.Next()
	a.Next()
	if len(b.Used()) != 0 {
		t.Errorf("expected untouched session, got %v", b.Used())
	}
}

func TestSingleModelPool(t *testing.T) {
	pool, err := NewPool([]models.ModelDescriptor{{Name: "only", ID: "only/model:free"}})
	if err != nil {
		t.Fatal(err)
	}
	session := pool.NewSession()
	for i := 0; i < 3; i++ {
		if got := session.NextModel(); got.ID != "only/model:free" {
			t.Errorf("unexpected model %q", got.ID)
		}
	}
}

func TestLookup(t *testing.T) {
	pool := newDefaultPool(t)

	if m, ok := pool.Lookup("kimi_dev_72b"); !ok || m.ID != "moonshotai/kimi-dev-72b:free" {
		t.Errorf("lookup by name failed: %+v %v", m, ok)
	}
	if _, ok := pool.Lookup("deepseek/deepseek-r1-0528:free"); !ok {
		t.Error("lookup by id failed")
	}
	if _, ok := pool.Lookup("missing"); ok {
		t.Error("expected missing model")
	}
}
