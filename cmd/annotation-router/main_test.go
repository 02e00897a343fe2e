package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/fpang/annotation-router/internal/router"
)

func TestClassesCommand(t *testing.T) {
	var buf bytes.Buffer
	classesCmd.SetOut(&buf)
	classesCmd.Run(classesCmd, nil)

	out := buf.String()
	for _, want := range []string{"Class table version 1", "class_01   Dairy product", "class_10   Vegetable/Fruit"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintReports(t *testing.T) {
	reports, err := router.New(newSeededStore(), router.Options{}).RouteAll(context.Background(), []router.Rule{
		{Source: "randomsampled", Bucket: "cleanproduction"},
	})
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	routeCmd.SetOut(&buf)
	verboseFlag = true
	defer func() { verboseFlag = false }()
	printReports(routeCmd, reports)

	out := buf.String()
	if !strings.Contains(out, "Routed: 1   Skipped (retried next run): 1") {
		t.Errorf("unexpected totals:\n%s", out)
	}
	if !strings.Contains(out, "SKIPPED: labelstudio/output/randomsampled/2 (unknown_label") {
		t.Errorf("verbose skip line missing:\n%s", out)
	}
}
