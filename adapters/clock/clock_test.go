package clock_test

import (
	"sync"
	"testing"
	"time"

	"github.com/artpar/paycore/adapters/clock"
)

func TestSettlement_Now(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	before := time.Now()
	now := clock.New(berlin).Now()
	after := time.Now()

	if now.Before(before) || now.After(after) {
		t.Errorf("Now() = %v, want between %v and %v", now, before, after)
	}
	if now.Location() != berlin {
		t.Errorf("Location = %v, want Europe/Berlin", now.Location())
	}
	if got := clock.New(nil).Now().Location(); got != time.Local {
		t.Errorf("nil location clock reports %v, want Local", got)
	}
}

func TestFake(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	c := clock.NewFake(start)

	if !c.Now().Equal(start) {
		t.Errorf("Now() = %v, want %v", c.Now(), start)
	}

	c.Advance(14 * 24 * time.Hour)
	if want := start.AddDate(0, 0, 14); !c.Now().Equal(want) {
		t.Errorf("after Advance Now() = %v, want %v", c.Now(), want)
	}

	c.Set(start)
	if !c.Now().Equal(start) {
		t.Errorf("after Set Now() = %v, want %v", c.Now(), start)
	}
}

func TestFake_Ticking(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	c := clock.NewTicking(start, time.Second)

	first, second := c.Now(), c.Now()
	if !first.Equal(start) {
		t.Errorf("first Now() = %v, want %v", first, start)
	}
	if second.Unix() != first.Unix()+1 {
		t.Errorf("second Now() = %v, want one second after %v", second, first)
	}
	if second.Location() != time.UTC {
		t.Errorf("Location = %v, want UTC", second.Location())
	}
}

func TestFake_ConcurrentAccess(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.Advance(time.Second)
		}()
		go func() {
			defer wg.Done()
			_ = c.Now()
		}()
	}
	wg.Wait()

	if got := c.Now().Unix(); got != 20 {
		t.Errorf("Now().Unix() = %d, want 20", got)
	}
}
