// Package s3client wraps an S3 session that is refreshed when a request
// fails with an expired or revoked credential.
package s3client

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/sts"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"text2phenotype.com/postag/logger"
)

const maxRetries = 4

type Client struct {
	holder     *sessionHolder
	bucketName string
	env        EnvironmentConfig
}

type sessionHolder struct {
	curr      *session.Session
	requestCh <-chan *session.Session
	errorCh   chan<- error
	closeCh   chan<- struct{}
}

var clientLogger = logger.NewLogger("S3Client")
var sdkLogger = logger.NewLogger("S3-SDK")

type EnvironmentConfig struct {
	BucketName  string `envconfig:"POSTAG_S3_BUCKET" required:"true"`
	Env         string `envconfig:"POSTAG_ENV" default:"prod"`
	Region      string `envconfig:"POSTAG_AWS_REGION" required:"true"`
	AwsEndpoint string `envconfig:"POSTAG_AWS_ENDPOINT_URL" default:""`
	AccessKeyID string `envconfig:"POSTAG_AWS_ACCESS_ID" default:""`
	AccessKey   string `envconfig:"POSTAG_AWS_ACCESS_KEY" default:""`
}

func ReadEnvironment() (EnvironmentConfig, error) {
	var config EnvironmentConfig
	err := envconfig.Process("", &config)
	return config, err
}

// New reads the environment and opens a session, trying the EC2 role first
// and static credentials second.
func New() (*Client, error) {
	env, err := ReadEnvironment()
	if err != nil {
		clientLogger.Err(err).Msg("Failed to get proper variables from environment")
		return nil, err
	}
	return NewWithConfig(env)
}

func NewWithConfig(env EnvironmentConfig) (*Client, error) {
	client := Client{
		bucketName: env.BucketName,
		env:        env,
	}
	sessionCh := make(chan *session.Session)
	errorCh := make(chan error)
	closeCh := make(chan struct{}, 1)

	client.holder = &sessionHolder{
		requestCh: sessionCh,
		errorCh:   errorCh,
		closeCh:   closeCh,
	}
	if err := client.acquireNewSession(); err != nil {
		return nil, err
	}
	go keepSessionRefreshed(&client, sessionCh, errorCh, closeCh)
	return &client, nil
}

func (client *Client) Bucket() string {
	return client.bucketName
}

func (client *Client) Upload(data []byte, key string) error {
	params := &s3manager.UploadInput{
		Bucket:      aws.String(client.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	}
	return client.withSession(func(sess *session.Session) error {
		return client.upload(sess, params)
	})
}

func (client *Client) Download(key string) ([]byte, error) {
	return client.DownloadFrom(client.bucketName, key)
}

// DownloadFrom reads an object from any bucket the session can access.
func (client *Client) DownloadFrom(bucket string, key string) ([]byte, error) {
	params := &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	var res []byte
	err := client.withSession(func(sess *session.Session) error {
		var err error
		res, err = client.download(sess, params)
		return err
	})
	return res, err
}

func (client *Client) Close() {
	client.holder.closeCh <- struct{}{}
}

// ParseURI splits s3://bucket/key.
func ParseURI(uri string) (string, string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", err
	}
	if u.Scheme != "s3" || len(u.Host) == 0 {
		return "", "", fmt.Errorf("%q is not an s3://bucket/key uri", uri)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if len(key) == 0 {
		return "", "", fmt.Errorf("%q has no object key", uri)
	}
	return u.Host, key, nil
}

// withSession runs op once and, if it fails, once more on a refreshed session.
func (client *Client) withSession(op func(sess *session.Session) error) error {
	sess, err := client.session()
	if err != nil {
		return err
	}
	err = op(sess)
	if err == nil {
		return nil
	}
	sess, err = client.tryRefreshingSession(err)
	if err != nil {
		return err
	}
	return op(sess)
}

func (client *Client) upload(sess *session.Session, params *s3manager.UploadInput) error {
	s3Logger := clientLogger.With().
		Str("key", *params.Key).
		Str("bucket", *params.Bucket).Logger()

	sdkLog := sdkLogger.With().
		Str("key", *params.Key).
		Str("bucket", *params.Bucket).Logger()

	uploader := s3manager.NewUploader(sess.Copy(&aws.Config{Logger: getLogger(sdkLog)}))
	s3Logger.Debug().Msg("Uploading the file")
	_, err := uploader.Upload(params)
	return err
}

func (client *Client) download(sess *session.Session, params *s3.GetObjectInput) ([]byte, error) {
	s3Logger := clientLogger.With().
		Str("key", *params.Key).
		Str("bucket", *params.Bucket).Logger()

	sdkLog := sdkLogger.With().
		Str("key", *params.Key).
		Str("bucket", *params.Bucket).Logger()

	downloader := s3manager.NewDownloader(sess.Copy(&aws.Config{Logger: getLogger(sdkLog)}))
	buf := aws.NewWriteAtBuffer([]byte{})

	s3Logger.Debug().Msg("Downloading file")
	size, err := downloader.Download(buf, params)
	if err != nil {
		s3Logger.Error().Err(err).Msg("Failed to download file")
		return nil, err
	}
	s3Logger.Debug().Msgf("Downloaded %v bytes", size)
	return buf.Bytes(), nil
}

func keepSessionRefreshed(client *Client, sessionCh chan<- *session.Session, errorCh <-chan error, closeCh <-chan struct{}) {
	for {
		select {
		case sessionCh <- client.holder.curr:
			continue
		default:
		}
		select {
		case sessionCh <- client.holder.curr:
		case err := <-errorCh:
			clientLogger.Error().Err(err).Msg("Caught error while using S3 session, trying to refresh it")
			if err = client.acquireNewSession(); err != nil {
				clientLogger.Error().Err(err).Msg("Caught error while refreshing S3 session")
				continue
			}
			clientLogger.Info().Msg("Successfully refreshed session")
		case <-closeCh:
			clientLogger.Info().Msg("Closing client")
			return
		}
	}
}

func (client *Client) tryRefreshingSession(err error) (*session.Session, error) {
	var sess *session.Session
	select {
	case client.holder.errorCh <- err:
		sess = <-client.holder.requestCh
	case sess = <-client.holder.requestCh:
	}
	if sess == nil {
		return nil, errors.New("failed to refresh session")
	}
	return sess, nil
}

func (client *Client) session() (*session.Session, error) {
	sess := <-client.holder.requestCh
	if sess == nil {
		return nil, errors.New("could not get session")
	}
	return sess, nil
}

func (client *Client) roleConfig() *aws.Config {
	return client.withEndpoint(aws.NewConfig().
		WithRegion(client.env.Region).
		WithMaxRetries(maxRetries).
		WithLogLevel(aws.LogDebug))
}

func (client *Client) staticConfig() (*aws.Config, error) {
	creds := credentials.NewStaticCredentials(client.env.AccessKeyID, client.env.AccessKey, "")
	if _, err := creds.Get(); err != nil {
		return nil, fmt.Errorf("credentials from environment: %w", err)
	}
	return client.withEndpoint(aws.NewConfig().
		WithRegion(client.env.Region).
		WithMaxRetries(maxRetries).
		WithCredentials(creds).
		WithLogLevel(aws.LogDebug)), nil
}

// withEndpoint points dev environments at a local S3 compatible server.
func (client *Client) withEndpoint(cfg *aws.Config) *aws.Config {
	if client.env.Env == "dev" && len(client.env.AwsEndpoint) > 0 {
		cfg = cfg.WithEndpoint(client.env.AwsEndpoint).WithS3ForcePathStyle(true)
	}
	return cfg
}

func (client *Client) acquireNewSession() error {
	sess, err := session.NewSession(client.roleConfig())
	if err == nil {
		if _, err = sts.New(sess).GetCallerIdentity(&sts.GetCallerIdentityInput{}); err == nil {
			client.holder.curr = sess
			clientLogger.Info().Msg("S3 session successfully initialized using EC2")
			return nil
		}
	}

	clientLogger.Info().Msg("Could not initialize S3 session using EC2, trying env credentials")
	cfg, err := client.staticConfig()
	if err != nil {
		client.holder.curr = nil
		clientLogger.Error().Err(err).Msg("Could not initialize S3 session")
		return err
	}
	sess, err = session.NewSession(cfg)
	if err != nil {
		client.holder.curr = nil
		clientLogger.Error().Err(err).Msg("Could not initialize S3 session")
		return err
	}
	if _, err = sts.New(sess).GetCallerIdentity(&sts.GetCallerIdentityInput{}); err != nil {
		client.holder.curr = nil
		clientLogger.Error().Err(err).Msg("Could not initialize S3 session")
		return errors.New("could not initialize S3 session")
	}
	client.holder.curr = sess
	clientLogger.Info().Msg("S3 session successfully initialized using env credentials")
	return nil
}

type s3Logger struct {
	logger zerolog.Logger
}

func getLogger(l zerolog.Logger) *s3Logger {
	return &s3Logger{l}
}

func (l *s3Logger) Log(v ...interface{}) {
	l.logger.Debug().Msg(fmt.Sprint(v...))
}
