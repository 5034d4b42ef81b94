package domain

import (
	"errors"
	"net"
	"strconv"
)

const (
	ServiceScale = "ImageProcessorService"
	ServiceCrop  = "ImageCropService"
	ServiceBlur  = "ImageBlurProcessorService"
)

// ErrServiceNotRegistered is returned when an endpoint does not host the
// requested service name.
var ErrServiceNotRegistered = errors.New("service not registered")

type ServiceEndpoint struct {
	Host        string
	Port        int
	ServiceName string
}

func (e ServiceEndpoint) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

func (e ServiceEndpoint) String() string {
	return e.ServiceName + "@" + e.Addr()
}

type ScaleRequest struct {
	Image      []byte  `json:"image"`
	Format     string  `json:"format"`
	ZoomFactor float64 `json:"zoom_factor"`
	UploadID   string  `json:"upload_id"`
}

type CropRequest struct {
	Image    []byte `json:"image"`
	Format   string `json:"format"`
	Region   Region `json:"region"`
	UploadID string `json:"upload_id"`
}

type BlurRequest struct {
	Image    []byte `json:"image"`
	Format   string `json:"format"`
	UploadID string `json:"upload_id"`
}
