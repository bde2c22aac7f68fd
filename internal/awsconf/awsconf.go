// Package awsconf loads the AWS SDK configuration shared by the S3, SES and
// CloudWatch clients.
package awsconf

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// Options selects the region and, optionally, static credentials.
type Options struct {
	// Region overrides the region from the environment when set.
	Region string

	// AccessKeyID and SecretAccessKey are used only when both are set;
	// otherwise the default credential chain (Lambda role, profile) applies.
	AccessKeyID     string
	SecretAccessKey string
}

// Load resolves an aws.Config from opts and the default chain.
func Load(ctx context.Context, opts Options) (aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOptions(opts)...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return awsCfg, nil
}

func loadOptions(opts Options) []func(*awsconfig.LoadOptions) error {
	var fns []func(*awsconfig.LoadOptions) error

	if opts.Region != "" {
		fns = append(fns, awsconfig.WithRegion(opts.Region))
	}

	// Use explicit credentials if provided, otherwise fall back to default chain
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		fns = append(fns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	return fns
}
