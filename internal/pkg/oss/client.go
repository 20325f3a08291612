package oss

import (
	"bytes"
	"fmt"
	"path"
	"strings"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"

	"github.com/qs3c/guitar_dice_server/config"
)

const audioPrefix = "chat/audio/"

type Client struct {
	client     *oss.Client
	bucket     *oss.Bucket
	bucketName string
	cdnDomain  string
}

func NewClient(cfg *config.OSSConfig) (*Client, error) {
	client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create OSS client: %w", err)
	}

	bucket, err := client.Bucket(cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to get bucket: %w", err)
	}

	return &Client{
		client:     client,
		bucket:     bucket,
		bucketName: cfg.BucketName,
		cdnDomain:  cfg.CDNDomain,
	}, nil
}

// UploadAudio 上传语音片段，name 为服务端生成的文件名
func (c *Client) UploadAudio(name string, data []byte, contentType string) (string, error) {
	objectKey := audioPrefix + path.Base(name)

	err := c.bucket.PutObject(objectKey, bytes.NewReader(data),
		oss.ContentType(contentType),
		oss.CacheControl("public, max-age=31536000, immutable"))
	if err != nil {
		return "", fmt.Errorf("failed to upload audio: %w", err)
	}

	return c.GetURL(objectKey), nil
}

// DeleteByURL 根据访问地址删除对象
func (c *Client) DeleteByURL(url string) error {
	return c.Delete(c.ExtractObjectKey(url))
}

// Delete 删除文件
func (c *Client) Delete(objectKey string) error {
	err := c.bucket.DeleteObject(objectKey)
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// GetURL 获取文件访问 URL
func (c *Client) GetURL(objectKey string) string {
	if c.cdnDomain != "" {
		return fmt.Sprintf("https://%s/%s", c.cdnDomain, objectKey)
	}
	return fmt.Sprintf("https://%s.%s/%s", c.bucketName, c.client.Config.Endpoint, objectKey)
}

// Owns 判断 URL 是否指向本 bucket
func (c *Client) Owns(url string) bool {
	if c.cdnDomain != "" && strings.HasPrefix(url, fmt.Sprintf("https://%s/", c.cdnDomain)) {
		return true
	}
	return strings.HasPrefix(url, fmt.Sprintf("https://%s.%s/", c.bucketName, c.client.Config.Endpoint))
}

// ExtractObjectKey 从 URL 中提取 object key
func (c *Client) ExtractObjectKey(url string) string {
	// 处理 CDN 域名
	if c.cdnDomain != "" {
		prefix := fmt.Sprintf("https://%s/", c.cdnDomain)
		if strings.HasPrefix(url, prefix) {
			return url[len(prefix):]
		}
	}

	// 标准 OSS URL: https://bucket-name.endpoint/path/to/object
	parts := strings.Split(url, "/")
	if len(parts) >= 4 {
		return strings.Join(parts[3:], "/")
	}

	return path.Base(url)
}
