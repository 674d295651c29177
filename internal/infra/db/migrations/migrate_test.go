package migrations

import "testing"

func TestSource(t *testing.T) {
	for _, driver := range []string{"postgres", "mysql"} {
		t.Run(driver, func(t *testing.T) {
			src, err := Source(driver)
			if err != nil {
				t.Fatalf("Source(%q) error = %v", driver, err)
			}
			defer src.Close()
			v, err := src.First()
			if err != nil || v != 1 {
				t.Fatalf("First() = %d, %v", v, err)
			}
			up, _, err := src.ReadUp(v)
			if err != nil {
				t.Fatalf("ReadUp: %v", err)
			}
			up.Close()
		})
	}
}

func TestSourceUnsupported(t *testing.T) {
	if _, err := Source("sqlite"); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
	if err := Run("postgres", "postgres://localhost/db", "sideways", 0); err == nil {
		t.Fatalf("expected error for unknown direction")
	}
}
