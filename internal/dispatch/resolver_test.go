package dispatch

import (
	"reflect"
	"testing"
)

func TestRemainingContacts(t *testing.T) {
	contacts := []string{"a", "b", "c", "d"}
	sent := map[string]struct{}{"b": {}, "d": {}}

	got := RemainingContacts(contacts, sent)
	want := []string{"a", "c"}

	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestRemainingContactsNoneSent(t *testing.T) {
	contacts := []string{"a", "b"}

	got := RemainingContacts(contacts, map[string]struct{}{})
	if !reflect.DeepEqual(got, contacts) {
		t.Errorf("expected all contacts remaining, got %v", got)
	}
}

func TestRemainingContactsAllSent(t *testing.T) {
	contacts := []string{"a", "b"}
	sent := map[string]struct{}{"a": {}, "b": {}}

	got := RemainingContacts(contacts, sent)
	if len(got) != 0 {
		t.Errorf("expected no contacts remaining, got %v", got)
	}
}

func TestRemainingContactsPreservesOrder(t *testing.T) {
	contacts := []string{"z", "m", "a", "q"}
	sent := map[string]struct{}{"m": {}}

	got := RemainingContacts(contacts, sent)
	want := []string{"z", "a", "q"}

	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected order preserved %v, got %v", want, got)
	}
}
