package selector

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Denni-Wild/Subs-bot-sub000/models"
)

// DefaultModels is the built-in pool of free OpenRouter models.
func DefaultModels() []models.ModelDescriptor {
	return []models.ModelDescriptor{
		{Name: "venice_uncensored", ID: "venice/uncensored:free"},
		{Name: "google_gemma_3n_2b", ID: "google/gemma-3n-e2b-it:free"},
		{Name: "tencent_hunyuan_a13b", ID: "tencent/hunyuan-a13b-instruct:free"},
		{Name: "tng_deepseek_r1t2_chimera", ID: "tngtech/deepseek-r1t2-chimera:free"},
		{Name: "cypher_alpha", ID: "openrouter/cypher-alpha:free"},
		{Name: "mistral_small_3_2_24b", ID: "mistralai/mistral-small-3.2-24b-instruct:free"},
		{Name: "kimi_dev_72b", ID: "moonshotai/kimi-dev-72b:free"},
		{Name: "deepseek_r1_0528", ID: "deepseek/deepseek-r1-0528:free"},
	}
}

// Pool is an ordered, immutable set of models.
type Pool struct {
	models []models.ModelDescriptor
}

func NewPool(descriptors []models.ModelDescriptor) (*Pool, error) {
	if len(descriptors) == 0 {
		return nil, fmt.Errorf("model pool is empty")
	}

	seen := make(map[string]bool, len(descriptors))
	pool := make([]models.ModelDescriptor, 0, len(descriptors))
	for i, d := range descriptors {
		d.Name = strings.TrimSpace(d.Name)
		d.ID = strings.TrimSpace(d.ID)
		if d.ID == "" {
			return nil, fmt.Errorf("model %d has no id", i)
		}
		if d.Name == "" {
			d.Name = d.ID
		}
		if seen[d.ID] {
			return nil, fmt.Errorf("duplicate model id %q", d.ID)
		}
		seen[d.ID] = true
		pool = append(pool, d)
	}
	return &Pool{models: pool}, nil
}

func (p *Pool) Len() int { return len(p.models) }

// Model returns the descriptor at index i.
func (p *Pool) Model(i int) models.ModelDescriptor { return p.models[i] }

// Models returns a copy of the pool in order.
func (p *Pool) Models() []models.ModelDescriptor {
	return append([]models.ModelDescriptor(nil), p.models...)
}

// Lookup finds a model by display name or id.
func (p *Pool) Lookup(nameOrID string) (models.ModelDescriptor, bool) {
	for _, m := range p.models {
		if m.Name == nameOrID || m.ID == nameOrID {
			return m, true
		}
	}
	return models.ModelDescriptor{}, false
}

type SessionOption func(*Session)

// WithRand sets the random source used to pick models.
func WithRand(r *rand.Rand) SessionOption {
	return func(s *Session) {
		if r != nil {
			s.rng = r
		}
	}
}

// NewSession starts a fresh rotation over the pool.
func (p *Pool) NewSession(opts ...SessionOption) *Session {
	s := &Session{
		pool: p,
		used: make(map[int]bool, len(p.models)),
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Session rotates through a pool without repeating a model until every
// model has been picked once.
type Session struct {
	pool *Pool

	mu   sync.Mutex
	used map[int]bool
	rng  *rand.Rand
}

// Next picks a random index not yet used in the current round. When every
// index has been used, the round starts over.
func (s *Session) Next() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.used) >= len(s.pool.models) {
		s.used = make(map[int]bool, len(s.pool.models))
	}

	available := make([]int, 0, len(s.pool.models)-len(s.used))
	for i := range s.pool.models {
		if !s.used[i] {
			available = append(available, i)
		}
	}

	pick := available[s.rng.Intn(len(available))]
	s.used[pick] = true
	return pick
}

// NextModel is Next resolved to its descriptor.
func (s *Session) NextModel() models.ModelDescriptor {
	return s.pool.Model(s.Next())
}

// Used returns the indices picked in the current round, ascending.
func (s *Session) Used() []int {
	s.mu.Lock()
	defer s.mu.Unlock()

	used := make([]int, 0, len(s.used))
	for i := range s.used {
		used = append(used, i)
	}
	sort.Ints(used)
	return used
}

func (s *Session) Pool() *Pool { return s.pool }
