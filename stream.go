package consumer

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// ErrStreamNotEnabled is wrapped by the error LatestStreamARN returns for a
// table that has no stream.
var ErrStreamNotEnabled = errors.New("table has no stream enabled")

// LatestStreamARN returns the ARN of the most recent stream of tableName. The
// table may be given by name or ARN.
func LatestStreamARN(ctx context.Context, client TableAPI, tableName string) (string, error) {
	resp, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(tableName),
	})
	if err != nil {
		return "", &DiscoveryError{Table: tableName, Err: err}
	}
	if resp.Table == nil || aws.ToString(resp.Table.LatestStreamArn) == "" {
		return "", &DiscoveryError{Table: tableName, Err: ErrStreamNotEnabled}
	}
	return aws.ToString(resp.Table.LatestStreamArn), nil
}
