package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/apimgr/weatherdash/src/server/metrics"
	"github.com/apimgr/weatherdash/src/server/model"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

const firingPayload = `{
	"status": "firing",
	"alerts": [
		{"status": "firing", "annotations": {"description": "Temperature above 40C in Dubai"}}
	]
}`

func TestAlertService_Receive(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()
	defer hub.Stop()

	sub := newTestClient(hub, "sub", 4)
	hub.Register(sub)
	waitFor(t, "registration", func() bool { return hub.ClientCount() == 1 })

	db := newTestDB(t)
	svc := NewAlertService(&model.AlertModel{DB: db}, hub, nil)
	before := testutil.ToFloat64(metrics.AlertsReceived.WithLabelValues("firing"))

	alert, err := svc.Receive(context.Background(), []byte(firingPayload))
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if alert.Status != "firing" || alert.Description != "Temperature above 40C in Dubai" {
		t.Errorf("alert = %+v", alert)
	}

	select {
	case msg := <-sub.Send:
		var compact bytes.Buffer
		json.Compact(&compact, []byte(firingPayload))
		want := `{"type":"new_alert","data":` + compact.String() + `}`
		if string(msg) != want {
			t.Errorf("broadcast = %s\nwant %s", msg, want)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for broadcast")
	}

	if got := testutil.ToFloat64(metrics.AlertsReceived.WithLabelValues("firing")); got != before+1 {
		t.Errorf("alerts_received{firing} = %v, want %v", got, before+1)
	}

	stored, err := (&model.AlertModel{DB: db}).Recent(context.Background(), 10)
	if err != nil || len(stored) != 1 || stored[0].ID != alert.ID {
		t.Errorf("stored alerts = %+v, %v", stored, err)
	}
}

func TestAlertService_NoDescription(t *testing.T) {
	svc := NewAlertService(nil, nil, nil)

	tests := []string{
		`{}`,
		`{"alerts":[]}`,
		`{"alerts":[{"annotations":{}}]}`,
		`{"alerts":"not a list"}`,
	}
	for _, body := range tests {
		alert, err := svc.Receive(context.Background(), []byte(body))
		if err != nil {
			t.Errorf("Receive(%s) error = %v", body, err)
			continue
		}
		if alert.Description != NoDescription {
			t.Errorf("Receive(%s) description = %q", body, alert.Description)
		}
	}
}

func TestAlertService_RejectsNonObject(t *testing.T) {
	svc := NewAlertService(nil, nil, nil)

	for _, body := range []string{``, `null`, `[1,2]`, `{"broken":`, `"text"`} {
		if _, err := svc.Receive(context.Background(), []byte(body)); !errors.Is(err, ErrInvalidPayload) {
			t.Errorf("Receive(%q) error = %v, want ErrInvalidPayload", body, err)
		}
	}
}

func TestAlertService_RecentRing(t *testing.T) {
	svc := NewAlertService(nil, nil, nil)
	ctx := context.Background()

	for i := 0; i < recentAlertsSize+5; i++ {
		body := fmt.Sprintf(`{"status":"firing","seq":%d}`, i)
		if _, err := svc.Receive(ctx, []byte(body)); err != nil {
			t.Fatal(err)
		}
	}

	all := svc.Recent(0)
	if len(all) != recentAlertsSize {
		t.Fatalf("Recent(0) returned %d, want %d", len(all), recentAlertsSize)
	}
	if want := fmt.Sprintf(`{"status":"firing","seq":%d}`, recentAlertsSize+4); string(all[0].Payload) != want {
		t.Errorf("newest = %s, want %s", all[0].Payload, want)
	}
	if want := `{"status":"firing","seq":5}`; string(all[len(all)-1].Payload) != want {
		t.Errorf("oldest = %s, want %s", all[len(all)-1].Payload, want)
	}

	if got := svc.Recent(3); len(got) != 3 {
		t.Errorf("Recent(3) returned %d", len(got))
	}
}

func TestAlertService_Load(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first := NewAlertService(&model.AlertModel{DB: db}, nil, nil)
	for _, status := range []string{"firing", "resolved"} {
		if _, err := first.Receive(ctx, []byte(`{"status":"`+status+`"}`)); err != nil {
			t.Fatal(err)
		}
	}

	second := NewAlertService(&model.AlertModel{DB: db}, nil, nil)
	if err := second.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := second.Recent(10); len(got) != 2 {
		t.Errorf("Recent() after Load = %d alerts, want 2", len(got))
	}
}

func TestAlertService_UnknownStatusCountsAsOther(t *testing.T) {
	svc := NewAlertService(nil, nil, nil)
	before := testutil.ToFloat64(metrics.AlertsReceived.WithLabelValues("other"))

	for i := 0; i < 20; i++ {
		alert, err := svc.Receive(context.Background(), []byte(fmt.Sprintf(`{"status":"made-up-%d"}`, i)))
		if err != nil {
			t.Fatal(err)
		}
		// the stored alert keeps the original status
		if alert.Status != fmt.Sprintf("made-up-%d", i) {
			t.Errorf("status = %q", alert.Status)
		}
	}

	if got := testutil.ToFloat64(metrics.AlertsReceived.WithLabelValues("other")); got != before+20 {
		t.Errorf("alerts_received{other} = %v, want %v", got, before+20)
	}
}
