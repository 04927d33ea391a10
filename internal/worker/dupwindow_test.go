package worker

import "testing"

func TestDupWindow(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{0, 1, 0}
	near := []float32{0.95, 0.312, 0} // dot with a ≈ 0.95

	t.Run("detects repeats per user", func(t *testing.T) {
		d := NewDupWindow(0)
		if d.IsDuplicate("u1", a) {
			t.Fatal("empty window reported a duplicate")
		}
		d.Record("u1", a)
		if !d.IsDuplicate("u1", a) {
			t.Error("exact repeat not detected")
		}
		if !d.IsDuplicate("u1", near) {
			t.Error("near repeat above threshold not detected")
		}
		if d.IsDuplicate("u1", b) {
			t.Error("orthogonal vector flagged as duplicate")
		}
		if d.IsDuplicate("u2", a) {
			t.Error("window leaked across users")
		}
	})

	t.Run("evicts beyond the window size", func(t *testing.T) {
		d := NewDupWindow(2)
		d.Record("u1", a)
		d.Record("u1", b)
		d.Record("u1", []float32{0, 0, 1})
		if d.IsDuplicate("u1", a) {
			t.Error("oldest entry still present after eviction")
		}
		if !d.IsDuplicate("u1", b) {
			t.Error("retained entry not detected")
		}
	})
}
