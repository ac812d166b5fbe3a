package state

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"
)

func TestCache_LazyExpiry(t *testing.T) {
	s, _ := newTestStore(t)

	s.SetCache("k", "v", 100*time.Millisecond)
	v, ok := s.GetCache("k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	time.Sleep(150 * time.Millisecond)

	assert.Equal(t, 1, s.Cache().Len(), "no sweep before read")
	_, ok = s.GetCache("k")
	assert.False(t, ok)
	assert.Equal(t, 0, s.Cache().Len())
}

func TestCache_NoTTL(t *testing.T) {
	c := NewCache()
	c.Set("k", 1, 0)
	time.Sleep(10 * time.Millisecond)

	v, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	c.Delete("k")
	_, ok = c.Get("k")
	assert.False(t, ok)

	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)
	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestLabel(t *testing.T) {
	tests := []struct {
		tag  language.Tag
		id   string
		want string
	}{
		{language.English, string(StatusQualityCheck), "Quality Check"},
		{language.English, string(TabHistory), "History"},
		{language.Turkish, string(StatusProducing), "Üretimde"},
		{language.MustParse("tr-TR"), string(TabStages), "Aşamalar"},
		{language.German, string(StatusIdle), "Idle"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Label(tt.tag, tt.id))
	}
	assert.Equal(t, "Producing", StatusLabel(language.English, StatusProducing))
}

func TestLabel_TurkishCatalog(t *testing.T) {
	ids := []string{
		string(StatusIdle), string(StatusPlanning), string(StatusProducing),
		string(StatusQualityCheck), string(StatusCompleted),
	}
	for _, r := range tabRules {
		ids = append(ids, string(r.id))
	}
	for _, id := range ids {
		_, ok := turkish[id]
		assert.True(t, ok, "no Turkish label for %q", id)
	}
	// planning is shared by the workflow status and the tab.
	assert.Equal(t, "Planlama", Label(language.Turkish, string(TabPlanning)))
	assert.Equal(t, "Planlama", StatusLabel(language.Turkish, StatusPlanning))
}

func TestCache_SetDuringExpiredRead(t *testing.T) {
	c := NewCache()
	var wg sync.WaitGroup
	for i := 0; i < 500; i++ {
		c.Set("k", "stale", time.Nanosecond)
		time.Sleep(time.Microsecond)
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.Get("k")
		}()
		go func() {
			defer wg.Done()
			c.Set("k", "fresh", time.Minute)
		}()
		wg.Wait()

		v, ok := c.Get("k")
		if !ok || v != "fresh" {
			t.Fatalf("iteration %d: fresh value lost, got %v %v", i, v, ok)
		}
	}
}
