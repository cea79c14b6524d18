// Package firebasestore implements the comment and profile stores on Cloud Firestore.
package firebasestore

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	commentsCollection = "comments"
	usersCollection    = "users"
)

// ClientConfig identifies the Firebase project backing the stores.
type ClientConfig struct {
	ProjectID string
	// CredentialsFile is a service account key. Application default credentials are used
	// when empty.
	CredentialsFile string
}

// NewClient opens a Firestore client for the configured project.
func NewClient(ctx context.Context, cfg ClientConfig) (*firestore.Client, error) {
	projectID := strings.TrimSpace(cfg.ProjectID)
	if projectID == "" {
		return nil, fmt.Errorf("firebasestore: project id is required")
	}
	var opts []option.ClientOption
	if credentials := strings.TrimSpace(cfg.CredentialsFile); credentials != "" {
		opts = append(opts, option.WithCredentialsFile(credentials))
	}
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebasestore: open client: %w", err)
	}
	return client, nil
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func isCanceled(err error) bool {
	code := status.Code(err)
	return code == codes.Canceled || code == codes.DeadlineExceeded
}
