package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/subkeeper/internal/clock"
	"github.com/dmitrijs2005/subkeeper/internal/common"
	"github.com/dmitrijs2005/subkeeper/internal/logging"
	sc "github.com/dmitrijs2005/subkeeper/internal/server/config"
	"github.com/google/uuid"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// AvatarURLValidity bounds how long a presigned avatar URL can be used.
const AvatarURLValidity = 15 * time.Minute

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

// AvatarService hands out presigned S3 URLs; the bytes never pass through
// the server. The resulting key is stored on the user via UpdateProfile.
type AvatarService struct {
	config *sc.Config
	log    logging.Logger
	clock  clock.Clock
}

func NewAvatarService(config *sc.Config, log logging.Logger, clk clock.Clock) *AvatarService {
	return &AvatarService{
		config: config,
		log:    log.With("module", "avatars"),
		clock:  clk,
	}
}

func avatarKeyPrefix(userID string) string {
	return "avatars/" + userID + "/"
}

func (s *AvatarService) newKey(userID string) string {
	d := s.clock.Now()
	return fmt.Sprintf("%s%d/%02d/%v", avatarKeyPrefix(userID), d.Year(), d.Month(), uuid.New())
}

func (s *AvatarService) getPresignClient(ctx context.Context) (*s3.PresignClient, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(s.config.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.config.S3RootUser,
			s.config.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.config.S3BaseEndpoint)
		o.UsePathStyle = true
	})

	return newS3PresignClient(client), nil
}

// UploadURL returns a fresh object key under the user's prefix and a
// presigned PUT URL for it.
func (s *AvatarService) UploadURL(ctx context.Context, userID string) (key, url string, err error) {
	presignClient, err := s.getPresignClient(ctx)
	if err != nil {
		return "", "", fail(ctx, s.log, "presign client", err)
	}

	bucket := s.config.S3Bucket
	key = s.newKey(userID)

	req, err := presignPutObject(presignClient, ctx, &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(AvatarURLValidity))
	if err != nil {
		return "", "", fail(ctx, s.log, "presign put", err)
	}

	return key, req.URL, nil
}

// DownloadURL presigns a GET for an avatar key owned by userID.
func (s *AvatarService) DownloadURL(ctx context.Context, userID, key string) (string, error) {
	if !strings.HasPrefix(key, avatarKeyPrefix(userID)) {
		return "", fmt.Errorf("%w: avatar key does not belong to user", common.ErrValidation)
	}

	presignClient, err := s.getPresignClient(ctx)
	if err != nil {
		return "", fail(ctx, s.log, "presign client", err)
	}

	bucket := s.config.S3Bucket
	req, err := presignGetObject(presignClient, ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(AvatarURLValidity))
	if err != nil {
		return "", fail(ctx, s.log, "presign get", err)
	}

	return req.URL, nil
}
