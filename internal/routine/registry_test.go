package routine

import "testing"

func TestRegistryListIsSortedAndComplete(t *testing.T) {
	reg := NewRegistry()
	all := reg.List()

	if len(all) == 0 {
		t.Fatal("registry has no routines")
	}

	for i := 1; i < len(all); i++ {
		if all[i-1].Name() > all[i].Name() {
			t.Errorf("registry List() not sorted: %q came before %q", all[i-1].Name(), all[i].Name())
		}
	}

	want := []string{
		"auto_chunk_miner", "avoid_gold_dig_diamond", "dig_to_coordinate",
		"execute_command", "mine_full_chunk", "move_to_coordinate",
		"set_label", "simple_walk", "smart_mine_full",
	}
	for _, name := range want {
		if _, ok := reg.Get(name); !ok {
			t.Errorf("registry missing expected routine %q", name)
		}
	}
}

func TestRegistryGetUnknown(t *testing.T) {
	reg := NewRegistry()
	if _, ok := reg.Get("does_not_exist"); ok {
		t.Error("Get should report false for an unregistered routine name")
	}
}
