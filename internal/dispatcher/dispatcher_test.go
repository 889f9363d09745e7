package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/notifyhq/delivery-pipeline/internal/domain"
	"github.com/notifyhq/delivery-pipeline/internal/queue"
	"github.com/notifyhq/delivery-pipeline/internal/repository"
	"github.com/notifyhq/delivery-pipeline/internal/taskerr"
)

type fakeCallbackRepo struct {
	configs map[string]*domain.ServiceCallback
	calls   int
}

func (f *fakeCallbackRepo) GetByServiceAndType(_ context.Context, serviceID string, callbackType domain.CallbackType) (*domain.ServiceCallback, error) {
	f.calls++
	config, ok := f.configs[serviceID+"/"+callbackType.String()]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return config, nil
}

type fakeNotificationRepo struct {
	notifications map[string]*domain.Notification
}

func (f *fakeNotificationRepo) GetByID(_ context.Context, id string) (*domain.Notification, error) {
	n, ok := f.notifications[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return n, nil
}

func (f *fakeNotificationRepo) GetByReference(_ context.Context, _ string) (*domain.Notification, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeNotificationRepo) UpdateStatusByReference(_ context.Context, _ string, _ domain.Status) (*repository.StatusUpdateResult, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeNotificationRepo) UpdateStatusByID(_ context.Context, _ string, _ domain.Status) (*repository.StatusUpdateResult, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeNotificationRepo) SetRecipient(_ context.Context, _ string, _ string) error {
	return errors.New("not implemented")
}

func (f *fakeNotificationRepo) ListByStatusFilter(_ context.Context, _ string, _ []string) ([]domain.Notification, error) {
	return nil, errors.New("not implemented")
}

type fakeComplaintRepo struct {
	complaints map[string]*domain.Complaint
}

func (f *fakeComplaintRepo) Create(_ context.Context, _ *domain.Complaint) error { return nil }

func (f *fakeComplaintRepo) GetByID(_ context.Context, id string) (*domain.Complaint, error) {
	c, ok := f.complaints[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return c, nil
}

type fakeInboundRepo struct {
	messages map[string]*domain.InboundSMS
}

func (f *fakeInboundRepo) GetByID(_ context.Context, id string) (*domain.InboundSMS, error) {
	sms, ok := f.messages[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return sms, nil
}

type fakeAttemptRepo struct {
	mu      sync.Mutex
	created []*repository.CallbackAttemptModel
}

func (f *fakeAttemptRepo) Create(_ context.Context, attempt *repository.CallbackAttemptModel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, attempt)
	return nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published []publishedMessage
}

type publishedMessage struct {
	queueName string
	body      []byte
}

func (f *fakePublisher) Publish(_ context.Context, queueName string, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, publishedMessage{queueName: queueName, body: body})
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func testNotification(id string, serviceID string) *domain.Notification {
	reference := "ref-" + id
	created := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)
	sent := created.Add(2 * time.Second)
	completed := created.Add(5 * time.Second)

	return &domain.Notification{
		ID:               id,
		ServiceID:        serviceID,
		NotificationType: domain.NotificationTypeEmail,
		Status:           domain.StatusDelivered,
		Reference:        &reference,
		Recipient:        "user@example.com",
		SentAt:           &sent,
		CompletedAt:      &completed,
		CreatedAt:        created,
		UpdatedAt:        completed,
	}
}

func newTestDispatcher(t *testing.T, callbacks *fakeCallbackRepo, notifications *fakeNotificationRepo, complaints *fakeComplaintRepo, inbound *fakeInboundRepo, attempts *fakeAttemptRepo, publisher *fakePublisher) *Dispatcher {
	t.Helper()

	d, err := NewDispatcher(callbacks, notifications, complaints, inbound, attempts, publisher, NewSender(), nil, nil, nil)
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}
	return d
}

func TestDispatcherDeliversStatusCallback(t *testing.T) {
	t.Parallel()

	var (
		gotAuth        string
		gotContentType string
		gotBody        map[string]any
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notification := testNotification("n-1", "svc-1")
	callbacks := &fakeCallbackRepo{configs: map[string]*domain.ServiceCallback{
		"svc-1/delivery_status": {
			ServiceID:    "svc-1",
			CallbackType: domain.CallbackTypeDeliveryStatus,
			URL:          server.URL,
			BearerToken:  "secret-token",
		},
	}}
	notifications := &fakeNotificationRepo{notifications: map[string]*domain.Notification{"n-1": notification}}
	attempts := &fakeAttemptRepo{}

	d := newTestDispatcher(t, callbacks, notifications, &fakeComplaintRepo{}, &fakeInboundRepo{}, attempts, &fakePublisher{})

	err := d.HandleTask(context.Background(), queue.CallbackTask{
		CallbackType:   domain.CallbackTypeDeliveryStatus,
		NotificationID: "n-1",
	})
	if err != nil {
		t.Fatalf("HandleTask() error = %v", err)
	}

	if gotAuth != "Bearer secret-token" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer secret-token")
	}
	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", gotContentType)
	}

	wantFields := map[string]string{
		"id":                "n-1",
		"reference":         "ref-n-1",
		"to":                "user@example.com",
		"status":            "delivered",
		"created_at":        "2025-03-10T09:30:00.000000Z",
		"sent_at":           "2025-03-10T09:30:02.000000Z",
		"completed_at":      "2025-03-10T09:30:05.000000Z",
		"notification_type": "email",
	}
	for field, want := range wantFields {
		got, ok := gotBody[field].(string)
		if !ok || got != want {
			t.Errorf("payload[%q] = %v, want %q", field, gotBody[field], want)
		}
	}

	if len(attempts.created) != 1 {
		t.Fatalf("recorded attempts = %d, want 1", len(attempts.created))
	}
	attempt := attempts.created[0]
	if attempt.TargetID != "n-1" || attempt.AttemptNumber != 1 {
		t.Errorf("attempt = {target %q, number %d}, want {n-1, 1}", attempt.TargetID, attempt.AttemptNumber)
	}
	if attempt.StatusCode == nil || *attempt.StatusCode != http.StatusOK {
		t.Errorf("attempt status code = %v, want 200", attempt.StatusCode)
	}
	if attempt.Error != nil {
		t.Errorf("attempt error = %v, want nil", *attempt.Error)
	}
}

func TestDispatcherServerErrorIsRetryable(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	callbacks := &fakeCallbackRepo{configs: map[string]*domain.ServiceCallback{
		"svc-1/delivery_status": {ServiceID: "svc-1", CallbackType: domain.CallbackTypeDeliveryStatus, URL: server.URL},
	}}
	notifications := &fakeNotificationRepo{notifications: map[string]*domain.Notification{
		"n-1": testNotification("n-1", "svc-1"),
	}}
	attempts := &fakeAttemptRepo{}

	d := newTestDispatcher(t, callbacks, notifications, &fakeComplaintRepo{}, &fakeInboundRepo{}, attempts, &fakePublisher{})

	err := d.HandleTask(context.Background(), queue.CallbackTask{
		CallbackType:   domain.CallbackTypeDeliveryStatus,
		NotificationID: "n-1",
	})
	if got := taskerr.ClassificationOf(err); got != taskerr.ClassRetryable {
		t.Fatalf("classification = %v, want retryable (err = %v)", got, err)
	}

	if len(attempts.created) != 1 {
		t.Fatalf("recorded attempts = %d, want 1", len(attempts.created))
	}
	if attempts.created[0].Error == nil {
		t.Error("expected attempt error to be recorded")
	}
}

func TestDispatcherClientErrorIsFatal(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	callbacks := &fakeCallbackRepo{configs: map[string]*domain.ServiceCallback{
		"svc-1/delivery_status": {ServiceID: "svc-1", CallbackType: domain.CallbackTypeDeliveryStatus, URL: server.URL},
	}}
	notifications := &fakeNotificationRepo{notifications: map[string]*domain.Notification{
		"n-1": testNotification("n-1", "svc-1"),
	}}

	d := newTestDispatcher(t, callbacks, notifications, &fakeComplaintRepo{}, &fakeInboundRepo{}, &fakeAttemptRepo{}, &fakePublisher{})

	err := d.HandleTask(context.Background(), queue.CallbackTask{
		CallbackType:   domain.CallbackTypeDeliveryStatus,
		NotificationID: "n-1",
	})
	if got := taskerr.ClassificationOf(err); got != taskerr.ClassFatal {
		t.Fatalf("classification = %v, want fatal (err = %v)", got, err)
	}
}

func TestCheckAndQueueCallbackWithoutConfigIsNoOp(t *testing.T) {
	t.Parallel()

	publisher := &fakePublisher{}
	d := newTestDispatcher(t, &fakeCallbackRepo{}, &fakeNotificationRepo{}, &fakeComplaintRepo{}, &fakeInboundRepo{}, &fakeAttemptRepo{}, publisher)

	if err := d.CheckAndQueueCallback(context.Background(), testNotification("n-1", "svc-1")); err != nil {
		t.Fatalf("CheckAndQueueCallback() error = %v", err)
	}
	if len(publisher.published) != 0 {
		t.Fatalf("published = %d messages, want 0", len(publisher.published))
	}
}

func TestCheckAndQueueCallbackEnqueuesTask(t *testing.T) {
	t.Parallel()

	publisher := &fakePublisher{}
	callbacks := &fakeCallbackRepo{configs: map[string]*domain.ServiceCallback{
		"svc-1/delivery_status": {ServiceID: "svc-1", CallbackType: domain.CallbackTypeDeliveryStatus, URL: "https://example.com/cb"},
	}}

	d := newTestDispatcher(t, callbacks, &fakeNotificationRepo{}, &fakeComplaintRepo{}, &fakeInboundRepo{}, &fakeAttemptRepo{}, publisher)

	if err := d.CheckAndQueueCallback(context.Background(), testNotification("n-1", "svc-1")); err != nil {
		t.Fatalf("CheckAndQueueCallback() error = %v", err)
	}

	if len(publisher.published) != 1 {
		t.Fatalf("published = %d messages, want 1", len(publisher.published))
	}
	if publisher.published[0].queueName != queue.QueueServiceCallbacks {
		t.Errorf("queue = %q, want %q", publisher.published[0].queueName, queue.QueueServiceCallbacks)
	}

	var task queue.CallbackTask
	if err := json.Unmarshal(publisher.published[0].body, &task); err != nil {
		t.Fatalf("failed to decode task: %v", err)
	}
	if task.CallbackType != domain.CallbackTypeDeliveryStatus || task.NotificationID != "n-1" || task.Attempt != 0 {
		t.Errorf("task = %+v, want delivery_status for n-1 at attempt 0", task)
	}
}

func TestQueueInboundSMSCallback(t *testing.T) {
	t.Parallel()

	sms := &domain.InboundSMS{
		ID:         "sms-1",
		ServiceID:  "svc-1",
		UserNumber: "447700900000",
		Content:    "STOP",
	}

	publisher := &fakePublisher{}
	d := newTestDispatcher(t, &fakeCallbackRepo{}, &fakeNotificationRepo{}, &fakeComplaintRepo{}, &fakeInboundRepo{}, &fakeAttemptRepo{}, publisher)

	// No inbound_sms configuration: warn and drop, never an error.
	if err := d.QueueInboundSMSCallback(context.Background(), sms); err != nil {
		t.Fatalf("QueueInboundSMSCallback() error = %v", err)
	}
	if len(publisher.published) != 0 {
		t.Fatalf("published = %d messages, want 0 without configuration", len(publisher.published))
	}

	callbacks := &fakeCallbackRepo{configs: map[string]*domain.ServiceCallback{
		"svc-1/inbound_sms": {ServiceID: "svc-1", CallbackType: domain.CallbackTypeInboundSMS, URL: "https://example.com/sms"},
	}}
	d = newTestDispatcher(t, callbacks, &fakeNotificationRepo{}, &fakeComplaintRepo{}, &fakeInboundRepo{}, &fakeAttemptRepo{}, publisher)

	if err := d.QueueInboundSMSCallback(context.Background(), sms); err != nil {
		t.Fatalf("QueueInboundSMSCallback() error = %v", err)
	}
	if len(publisher.published) != 1 {
		t.Fatalf("published = %d messages, want 1", len(publisher.published))
	}

	var task queue.CallbackTask
	if err := json.Unmarshal(publisher.published[0].body, &task); err != nil {
		t.Fatalf("failed to decode task: %v", err)
	}
	if task.CallbackType != domain.CallbackTypeInboundSMS || task.InboundSMSID != "sms-1" {
		t.Errorf("task = %+v, want inbound_sms for sms-1", task)
	}
}

func TestDispatcherComplaintCallback(t *testing.T) {
	t.Parallel()

	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	complaint := &domain.Complaint{
		ID:             "c-1",
		NotificationID: "n-1",
		ServiceID:      "svc-1",
		FeedbackID:     "fb-1",
		ComplaintType:  "abuse",
		ComplaintDate:  time.Date(2025, 3, 11, 8, 0, 0, 0, time.UTC),
	}
	callbacks := &fakeCallbackRepo{configs: map[string]*domain.ServiceCallback{
		"svc-1/complaint": {ServiceID: "svc-1", CallbackType: domain.CallbackTypeComplaint, URL: server.URL},
	}}
	notifications := &fakeNotificationRepo{notifications: map[string]*domain.Notification{
		"n-1": testNotification("n-1", "svc-1"),
	}}
	complaints := &fakeComplaintRepo{complaints: map[string]*domain.Complaint{"c-1": complaint}}

	d := newTestDispatcher(t, callbacks, notifications, complaints, &fakeInboundRepo{}, &fakeAttemptRepo{}, &fakePublisher{})

	err := d.HandleTask(context.Background(), queue.CallbackTask{
		CallbackType: domain.CallbackTypeComplaint,
		ComplaintID:  "c-1",
	})
	if err != nil {
		t.Fatalf("HandleTask() error = %v", err)
	}

	wantFields := map[string]string{
		"notification_id": "n-1",
		"complaint_id":    "c-1",
		"reference":       "ref-n-1",
		"to":              "user@example.com",
		"complaint_date":  "2025-03-11T08:00:00.000000Z",
	}
	for field, want := range wantFields {
		got, ok := gotBody[field].(string)
		if !ok || got != want {
			t.Errorf("payload[%q] = %v, want %q", field, gotBody[field], want)
		}
	}
}

func TestNotifyOperatorPostsComplaint(t *testing.T) {
	t.Parallel()

	var (
		gotAuth string
		gotBody map[string]any
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := newTestDispatcher(t, &fakeCallbackRepo{}, &fakeNotificationRepo{}, &fakeComplaintRepo{}, &fakeInboundRepo{}, &fakeAttemptRepo{}, &fakePublisher{})
	d.SetOperatorChannel(server.URL, "ops-token")

	complaint := &domain.Complaint{
		ID:             "c-1",
		NotificationID: "n-1",
		ServiceID:      "svc-1",
		ComplaintDate:  time.Date(2025, 3, 11, 8, 0, 0, 0, time.UTC),
	}
	d.NotifyOperator(context.Background(), complaint, testNotification("n-1", "svc-1"))

	if gotAuth != "Bearer ops-token" {
		t.Errorf("Authorization = %q, want Bearer ops-token", gotAuth)
	}
	if gotBody["complaint_id"] != "c-1" || gotBody["notification_id"] != "n-1" {
		t.Errorf("body = %v, want complaint c-1 for notification n-1", gotBody)
	}
}

func TestDispatcherMissingInboundSMSFailsHard(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t, &fakeCallbackRepo{}, &fakeNotificationRepo{}, &fakeComplaintRepo{}, &fakeInboundRepo{}, &fakeAttemptRepo{}, &fakePublisher{})

	err := d.HandleTask(context.Background(), queue.CallbackTask{
		CallbackType: domain.CallbackTypeInboundSMS,
		InboundSMSID: "missing",
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("HandleTask() error = %v, want wrapped ErrNotFound", err)
	}
	if got := taskerr.ClassificationOf(err); got != taskerr.Unclassified {
		t.Fatalf("classification = %v, want unclassified", got)
	}
}

func TestDispatcherSkipsWhenConfigRemoved(t *testing.T) {
	t.Parallel()

	notifications := &fakeNotificationRepo{notifications: map[string]*domain.Notification{
		"n-1": testNotification("n-1", "svc-1"),
	}}

	d := newTestDispatcher(t, &fakeCallbackRepo{}, notifications, &fakeComplaintRepo{}, &fakeInboundRepo{}, &fakeAttemptRepo{}, &fakePublisher{})

	err := d.HandleTask(context.Background(), queue.CallbackTask{
		CallbackType:   domain.CallbackTypeDeliveryStatus,
		NotificationID: "n-1",
	})
	if err != nil {
		t.Fatalf("HandleTask() error = %v, want nil when configuration is gone", err)
	}
}
