package main

import (
	"testing"

	"bitbucket.org/mmdatafocus/ricemill_stock/inventory"
)

func TestAnalyseGroupsByClass(t *testing.T) {
	outturns := []inventory.Outturn{
		{Id: 1, Code: "OT-1", AllottedVariety: "SUM25 RNR", Type: "Steam"},
		{Id: 2, Code: "OT-2", AllottedVariety: "KNM", Type: "Raw"},
	}
	got := analyse([]string{"sum25 rnr steam", "SUM25 RNR STEEM", "BPT 5204 RAW"}, outturns)
	if len(got.AutoMap) != 1 || got.AutoMap[0].Variety != "sum25 rnr steam" || got.AutoMap[0].OutturnCode != "OT-1" {
		t.Fatalf("auto-map=%+v", got.AutoMap)
	}
	if len(got.Review) != 1 || got.Review[0].Variety != "SUM25 RNR STEEM" {
		t.Fatalf("review=%+v", got.Review)
	}
	if len(got.NewOutturn) != 1 || got.NewOutturn[0].Variety != "BPT 5204 RAW" {
		t.Fatalf("new-outturn=%+v", got.NewOutturn)
	}

	empty := analyse([]string{"KNM RAW"}, nil)
	if len(empty.NewOutturn) != 1 || empty.NewOutturn[0].OutturnCode != "" {
		t.Fatalf("no outturns should classify as new-outturn, got %+v", empty)
	}
}
