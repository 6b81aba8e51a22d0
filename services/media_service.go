package services

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	fig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/nexchat-app/nexchat/config"
	apiError "github.com/nexchat-app/nexchat/errors"
	"github.com/nexchat-app/nexchat/models"
	"github.com/nfnt/resize"
)

const (
	MaxImageFileSize = 10 * 1024 * 1024
	MaxAudioFileSize = 10 * 1024 * 1024
	MaxOtherFileSize = 25 * 1024 * 1024
)

// MediaUploadResult is what the upload endpoint returns; MediaURL goes into
// SendMessageRequest.MediaURL on the follow-up send.
type MediaUploadResult struct {
	MediaURL     string             `json:"media_url"`
	ThumbnailURL string             `json:"thumbnail_url,omitempty"`
	MessageType  models.MessageType `json:"message_type"`
	FileSize     int64              `json:"file_size"`
}

type MediaService interface {
	UploadAttachment(userID uuid.UUID, fileHeader *multipart.FileHeader) (*MediaUploadResult, *apiError.Error)
}

type mediaService struct {
	Config *config.Config
}

func NewMediaService(conf *config.Config) MediaService {
	return &mediaService{Config: conf}
}

// UploadAttachment stores the file in the media bucket and, for images, a
// JPEG thumbnail alongside it. Attachments are uploaded before the message
// that references them is sent.
func (m *mediaService) UploadAttachment(userID uuid.UUID, fileHeader *multipart.FileHeader) (*MediaUploadResult, *apiError.Error) {
	if m.Config.MediaBucket == "" {
		log.Println("media bucket is not configured")
		return nil, apiError.ErrInternalServerError
	}

	file, err := fileHeader.Open()
	if err != nil {
		log.Printf("failed to open uploaded file: %v", err)
		return nil, apiError.New("unable to read uploaded file", http.StatusBadRequest)
	}
	defer file.Close()

	buffer := make([]byte, 512)
	n, err := file.Read(buffer)
	if err != nil && err != io.EOF {
		log.Printf("failed to sniff content type: %v", err)
		return nil, apiError.New("unable to read uploaded file", http.StatusBadRequest)
	}
	contentType := http.DetectContentType(buffer[:n])
	messageType := resolveAttachmentType(contentType)

	if err := checkAttachmentSize(fileHeader.Size, messageType); err != nil {
		return nil, apiError.New(err.Error(), http.StatusBadRequest)
	}

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		log.Printf("failed to rewind uploaded file: %v", err)
		return nil, apiError.ErrInternalServerError
	}

	client, cfgErr := m.s3Client()
	if cfgErr != nil {
		log.Printf("unable to load AWS config: %v", cfgErr)
		return nil, apiError.ErrInternalServerError
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	fileKey := fmt.Sprintf("attachments/%s/%s%s", userID, uuid.New(), ext)
	if err := m.putObject(client, fileKey, file, contentType); err != nil {
		log.Printf("failed to upload attachment to S3: %v", err)
		return nil, apiError.ErrInternalServerError
	}

	result := &MediaUploadResult{
		MediaURL:    m.objectURL(fileKey),
		MessageType: messageType,
		FileSize:    fileHeader.Size,
	}

	if messageType == models.TypeImage {
		thumbnailURL, err := m.uploadImageThumbnail(client, file, fileKey)
		if err != nil {
			// The full-size upload already succeeded; a missing thumbnail
			// only degrades previews.
			log.Printf("failed to generate thumbnail for %s: %v", fileKey, err)
		} else {
			result.ThumbnailURL = thumbnailURL
		}
	}

	return result, nil
}

func (m *mediaService) uploadImageThumbnail(client *s3.Client, file multipart.File, fileKey string) (string, error) {
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("failed to rewind file: %v", err)
	}

	img, _, err := image.Decode(file)
	if err != nil {
		return "", fmt.Errorf("failed to decode image: %v", err)
	}

	// Cap the source before thumbnailing so oversized uploads don't blow
	// up memory on resize.
	bounded := imaging.Fit(img, 2048, 2048, imaging.Lanczos)
	thumbnail := resize.Resize(200, 0, bounded, resize.Lanczos3)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumbnail, nil); err != nil {
		return "", fmt.Errorf("failed to encode thumbnail: %v", err)
	}

	thumbnailKey := strings.TrimSuffix(fileKey, filepath.Ext(fileKey)) + "_thumbnail.jpg"
	if err := m.putObject(client, thumbnailKey, bytes.NewReader(buf.Bytes()), "image/jpeg"); err != nil {
		return "", fmt.Errorf("failed to upload thumbnail: %v", err)
	}

	return m.objectURL(thumbnailKey), nil
}

func (m *mediaService) s3Client() (*s3.Client, error) {
	cfg, err := fig.LoadDefaultConfig(context.TODO(),
		fig.WithRegion(m.Config.AwsRegion),
		fig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(m.Config.AwsAccessKeyID, m.Config.AwsSecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(cfg), nil
}

func (m *mediaService) putObject(client *s3.Client, fileKey string, body io.Reader, contentType string) error {
	_, err := client.PutObject(context.TODO(), &s3.PutObjectInput{
		Bucket:      aws.String(m.Config.MediaBucket),
		Key:         aws.String(fileKey),
		Body:        body,
		ACL:         "public-read",
		ContentType: aws.String(contentType),
	})
	return err
}

func (m *mediaService) objectURL(fileKey string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", m.Config.MediaBucket, m.Config.AwsRegion, fileKey)
}

func resolveAttachmentType(contentType string) models.MessageType {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return models.TypeImage
	case strings.HasPrefix(contentType, "audio/"), contentType == "application/ogg":
		return models.TypeAudio
	default:
		return models.TypeFile
	}
}

func checkAttachmentSize(size int64, messageType models.MessageType) error {
	limit := int64(MaxOtherFileSize)
	switch messageType {
	case models.TypeImage:
		limit = MaxImageFileSize
	case models.TypeAudio:
		limit = MaxAudioFileSize
	}
	if size > limit {
		return fmt.Errorf("file size exceeds the maximum allowed size")
	}
	return nil
}
