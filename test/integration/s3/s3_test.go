//go:build integration

package s3_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/marmos91/driftflow/pkg/checkpoint"
	"github.com/marmos91/driftflow/pkg/node"
	"github.com/marmos91/driftflow/pkg/records"
	"github.com/marmos91/driftflow/pkg/store"
	"github.com/marmos91/driftflow/pkg/store/blob"
	s3store "github.com/marmos91/driftflow/pkg/store/blob/s3"
	"github.com/marmos91/driftflow/pkg/store/blob/blobtest"
)

// localstackHelper manages the Localstack container for S3 integration tests.
type localstackHelper struct {
	container testcontainers.Container
	endpoint  string
	client    *s3.Client
}

// newLocalstackHelper starts a Localstack container or connects to an
// existing one configured via LOCALSTACK_ENDPOINT.
func newLocalstackHelper(t *testing.T) *localstackHelper {
	t.Helper()
	ctx := context.Background()

	if endpoint := os.Getenv("LOCALSTACK_ENDPOINT"); endpoint != "" {
		helper := &localstackHelper{endpoint: endpoint}
		helper.createClient(t)
		return helper
	}

	req := testcontainers.ContainerRequest{
		Image:        "localstack/localstack:3.0",
		ExposedPorts: []string{"4566/tcp"},
		Env: map[string]string{
			"SERVICES":              "s3",
			"DEFAULT_REGION":        "us-east-1",
			"EAGER_SERVICE_LOADING": "1",
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("4566/tcp"),
			wait.ForHTTP("/_localstack/health").
				WithPort("4566/tcp").
				WithStartupTimeout(60*time.Second),
		),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start localstack container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "4566")
	if err != nil {
		t.Fatalf("failed to get container port: %v", err)
	}

	helper := &localstackHelper{
		container: container,
		endpoint:  fmt.Sprintf("http://%s:%s", host, port.Port()),
	}
	helper.createClient(t)
	return helper
}

// createClient creates an S3 client configured for Localstack.
func (lh *localstackHelper) createClient(t *testing.T) {
	t.Helper()

	cfg, err := awsConfig.LoadDefaultConfig(context.Background(),
		awsConfig.WithRegion("us-east-1"),
		awsConfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			"test", "test", "",
		)),
	)
	if err != nil {
		t.Fatalf("failed to load AWS config: %v", err)
	}

	lh.client = s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = &lh.endpoint
		o.UsePathStyle = true
	})
}

// createBucket creates a new S3 bucket.
func (lh *localstackHelper) createBucket(t *testing.T, bucketName string) {
	t.Helper()

	_, err := lh.client.CreateBucket(context.Background(), &s3.CreateBucketInput{
		Bucket: aws.String(bucketName),
	})
	if err != nil {
		t.Fatalf("failed to create test bucket: %v", err)
	}
}

var bucketCounter int

func (lh *localstackHelper) newStoreFactory(t *testing.T) blob.Storage {
	t.Helper()
	bucketCounter++
	bucket := fmt.Sprintf("driftflow-test-%d-%d", os.Getpid(), bucketCounter)
	lh.createBucket(t, bucket)

	s, err := s3store.New(context.Background(), s3store.Config{
		Client: lh.client,
		Bucket: bucket,
	})
	if err != nil {
		t.Fatalf("failed to create S3 store: %v", err)
	}
	return s
}

func TestS3Store_Conformance(t *testing.T) {
	lh := newLocalstackHelper(t)
	blobtest.RunStorageTests(t, lh.newStoreFactory)
}

func TestS3Store_CheckpointRoundTrip(t *testing.T) {
	lh := newLocalstackHelper(t)
	lh.createBucket(t, "driftflow-checkpoints")

	ctx := context.Background()
	storageCfg := store.Config{
		Type: store.BackendS3,
		S3: store.S3Config{
			Bucket:          "driftflow-checkpoints",
			Region:          "us-east-1",
			Endpoint:        lh.endpoint,
			AccessKeyID:     "test",
			SecretAccessKey: "test",
			ForcePathStyle:  true,
		},
	}

	states := node.SourceStates{
		node.NewHandle(1, "id"): node.NewPosition(1, 1),
	}

	factory, ckpt, err := checkpoint.NewFactory(ctx, "pipelines/orders", checkpoint.FactoryOptions{
		StorageConfig: storageCfg,
	})
	if err != nil {
		t.Fatalf("NewFactory failed: %v", err)
	}
	if ckpt != nil {
		t.Fatalf("fresh bucket should have no checkpoint")
	}

	factory.RecordStore().CreateRef(records.Record{records.Int(0)})
	writer := factory.CreateWriter(42, states)
	if err := writer.Close(); err != nil {
		t.Fatalf("writer Close failed: %v", err)
	}
	factory.Close()

	restored, ckpt, err := checkpoint.NewFactory(ctx, "pipelines/orders", checkpoint.FactoryOptions{
		StorageConfig: storageCfg,
	})
	if err != nil {
		t.Fatalf("recovery failed: %v", err)
	}
	defer restored.Close()

	if ckpt.NumSlices() != 1 || ckpt.EpochID() != 42 {
		t.Errorf("descriptor: slices=%d epoch=%d", ckpt.NumSlices(), ckpt.EpochID())
	}
	if !ckpt.SourceStates().Equal(states) {
		t.Errorf("source states not recovered: %v", ckpt.SourceStates())
	}
	if restored.RecordStore().NumRecords() != 1 {
		t.Errorf("records = %d, want 1", restored.RecordStore().NumRecords())
	}
}
