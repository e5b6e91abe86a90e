package command

import (
	"strconv"

	"github.com/denecity/taas/internal/store"
)

// InspectResult is the normalized shape of an inspect()/inspect_up()/
// inspect_down() call, per spec §4.E: a flattened block name plus the two
// tag flags routines care about (ore veins, and whether it's mineable with
// a pickaxe at all).
type InspectResult struct {
	Present         bool
	Name            string
	COres           bool
	MineablePickaxe bool
}

func normalizeInspect(raw any) InspectResult {
	m, ok := raw.(map[string]any)
	if !ok {
		return InspectResult{}
	}
	ok2, _ := m["ok"].(bool)
	if !ok2 {
		return InspectResult{}
	}
	data, _ := m["data"].(map[string]any)
	if data == nil {
		return InspectResult{Present: true}
	}
	name, _ := data["name"].(string)
	res := InspectResult{Present: true, Name: name}
	if tags, ok := data["tags"].(map[string]any); ok {
		if v, ok := tags["c:ores"].(bool); ok {
			res.COres = v
		}
		if v, ok := tags["minecraft:mineable/pickaxe"].(bool); ok {
			res.MineablePickaxe = v
		}
	}
	return res
}

// normalizeInventory converts the firmware's raw 16-entry inventory dump
// (nil entries for empty slots) into the per-slot struct the State Store
// and REST boundary both expect.
func normalizeInventory(raw any) map[int]store.InventorySlot {
	out := make(map[int]store.InventorySlot, 16)

	entries, ok := raw.(map[string]any)
	if !ok {
		if list, ok := raw.([]any); ok {
			entries = make(map[string]any, len(list))
			for i, v := range list {
				entries[strconv.Itoa(i+1)] = v
			}
		}
	}

	for slot := 1; slot <= 16; slot++ {
		out[slot] = normalizeSlot(slot, entries[strconv.Itoa(slot)])
	}
	return out
}

func normalizeSlot(slot int, raw any) store.InventorySlot {
	s := store.InventorySlot{Slot: slot}
	detail, ok := raw.(map[string]any)
	if !ok || detail == nil {
		return s
	}
	s.Name, _ = detail["name"].(string)
	s.DisplayName, _ = detail["displayName"].(string)
	if c, ok := toInt64(detail["count"]); ok {
		s.Count = int(c)
	}
	if tags, ok := detail["tags"].(map[string]any); ok {
		s.COres, _ = tags["c:ores"].(bool)
		s.CGems, _ = tags["c:gems"].(bool)
		s.CStones, _ = tags["c:stones"].(bool)
		s.CChests, _ = tags["c:chests"].(bool)
		s.BuildingBlk, _ = tags["minecraft:building_blocks"].(bool)
	}
	return s
}
