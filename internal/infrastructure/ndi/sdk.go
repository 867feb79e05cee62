//go:build ndi

package ndi

/*
#cgo CFLAGS: -I${SRCDIR}/include
#cgo darwin LDFLAGS: -L/Library/NDI\ SDK\ for\ Apple/lib/macOS -lndi
#cgo linux LDFLAGS: -L/usr/lib -lndi
#cgo windows LDFLAGS: -L"C:/Program Files/NDI/NDI 5 SDK/Lib/x64" -lProcessing.NDI.Lib.x64

#include <stdlib.h>
#include <stdbool.h>
#include <stdint.h>

typedef struct NDIlib_source_t {
    const char* p_ndi_name;
    const char* p_url_address;
} NDIlib_source_t;

typedef struct NDIlib_find_create_t {
    bool show_local_sources;
    const char* p_groups;
    const char* p_extra_ips;
} NDIlib_find_create_t;

typedef void* NDIlib_find_instance_t;
typedef void* NDIlib_recv_instance_t;

typedef struct NDIlib_recv_create_v3_t {
    NDIlib_source_t source_to_connect_to;
    int color_format;
    int bandwidth;
    bool allow_video_fields;
    const char* p_ndi_recv_name;
} NDIlib_recv_create_v3_t;

typedef enum NDIlib_frame_type_e {
    NDIlib_frame_type_none = 0,
    NDIlib_frame_type_video = 1,
    NDIlib_frame_type_audio = 2,
    NDIlib_frame_type_metadata = 3,
    NDIlib_frame_type_error = 4,
    NDIlib_frame_type_status_change = 100
} NDIlib_frame_type_e;

typedef struct NDIlib_video_frame_v2_t {
    int xres;
    int yres;
    int FourCC;
    int frame_rate_N;
    int frame_rate_D;
    float picture_aspect_ratio;
    int frame_format_type;
    int64_t timecode;
    uint8_t* p_data;
    int line_stride_in_bytes;
    const char* p_metadata;
    int64_t timestamp;
} NDIlib_video_frame_v2_t;

typedef struct NDIlib_audio_frame_v2_t {
    int sample_rate;
    int no_channels;
    int no_samples;
    int64_t timecode;
    float* p_data;
    int channel_stride_in_bytes;
    const char* p_metadata;
    int64_t timestamp;
} NDIlib_audio_frame_v2_t;

typedef struct NDIlib_metadata_frame_t {
    int length;
    int64_t timecode;
    char* p_data;
} NDIlib_metadata_frame_t;

extern bool NDIlib_initialize(void);
extern void NDIlib_destroy(void);
extern const char* NDIlib_version(void);

extern NDIlib_find_instance_t NDIlib_find_create_v2(const NDIlib_find_create_t* p_create_settings);
extern void NDIlib_find_destroy(NDIlib_find_instance_t p_instance);
extern bool NDIlib_find_wait_for_sources(NDIlib_find_instance_t p_instance, uint32_t timeout_in_ms);
extern const NDIlib_source_t* NDIlib_find_get_current_sources(NDIlib_find_instance_t p_instance, uint32_t* p_no_sources);

extern NDIlib_recv_instance_t NDIlib_recv_create_v3(const NDIlib_recv_create_v3_t* p_create_settings);
extern void NDIlib_recv_destroy(NDIlib_recv_instance_t p_instance);
extern void NDIlib_recv_connect(NDIlib_recv_instance_t p_instance, const NDIlib_source_t* p_src);
extern NDIlib_frame_type_e NDIlib_recv_capture_v2(NDIlib_recv_instance_t p_instance, NDIlib_video_frame_v2_t* p_video_data, NDIlib_audio_frame_v2_t* p_audio_data, NDIlib_metadata_frame_t* p_metadata, uint32_t timeout_in_ms);
extern void NDIlib_recv_free_video_v2(NDIlib_recv_instance_t p_instance, const NDIlib_video_frame_v2_t* p_video_data);
extern void NDIlib_recv_free_audio_v2(NDIlib_recv_instance_t p_instance, const NDIlib_audio_frame_v2_t* p_audio_data);
extern void NDIlib_recv_free_metadata(NDIlib_recv_instance_t p_instance, const NDIlib_metadata_frame_t* p_metadata);

static inline NDIlib_find_instance_t ndi_find_ptr(uintptr_t h) { return (NDIlib_find_instance_t)h; }
static inline NDIlib_recv_instance_t ndi_recv_ptr(uintptr_t h) { return (NDIlib_recv_instance_t)h; }
*/
import "C"

import (
	"errors"
	"time"
	"unsafe"

	"ndilive/internal/core/domain"
	"ndilive/internal/core/ports"

	"go.uber.org/zap"
)

var runtimeLifecycle = newLifecycle(
	func() bool { return bool(C.NDIlib_initialize()) },
	func() { C.NDIlib_destroy() },
)

// SDK is the native transport backed by the NDI runtime library.
type SDK struct {
	logger *zap.SugaredLogger
}

func NewSDK(logger *zap.SugaredLogger) *SDK {
	return &SDK{logger: logger}
}

// Available reports whether the runtime library can be initialized.
func Available() bool {
	return (&SDK{}).Initialize() == nil
}

func Version() string {
	if !Available() {
		return "unknown (not initialized)"
	}
	return C.GoString(C.NDIlib_version())
}

// Initialize loads the runtime once per process. Later calls return the
// first outcome.
func (s *SDK) Initialize() error {
	return runtimeLifecycle.Initialize()
}

// Destroy unloads the runtime. Only the first call has any effect.
func (s *SDK) Destroy() {
	runtimeLifecycle.Destroy()
}

func (s *SDK) FindCreate(opts ports.FindOptions) (ports.FindHandle, error) {
	var settings C.NDIlib_find_create_t
	settings.show_local_sources = C.bool(opts.ShowLocalSources)
	if opts.Groups != "" {
		settings.p_groups = C.CString(opts.Groups)
		defer C.free(unsafe.Pointer(settings.p_groups))
	}
	if opts.ExtraIPs != "" {
		settings.p_extra_ips = C.CString(opts.ExtraIPs)
		defer C.free(unsafe.Pointer(settings.p_extra_ips))
	}

	instance := C.NDIlib_find_create_v2(&settings)
	if instance == nil {
		return 0, errors.New("failed to create NDI finder")
	}
	return ports.FindHandle(uintptr(instance)), nil
}

func (s *SDK) FindDestroy(h ports.FindHandle) {
	C.NDIlib_find_destroy(C.ndi_find_ptr(C.uintptr_t(h)))
}

func (s *SDK) FindWaitForSources(h ports.FindHandle, timeout time.Duration) bool {
	return bool(C.NDIlib_find_wait_for_sources(C.ndi_find_ptr(C.uintptr_t(h)), C.uint32_t(timeout.Milliseconds())))
}

// FindCurrentSources copies the listing out of SDK memory. The SDK may
// reuse that memory on the next call.
func (s *SDK) FindCurrentSources(h ports.FindHandle) []domain.Source {
	var count C.uint32_t
	list := C.NDIlib_find_get_current_sources(C.ndi_find_ptr(C.uintptr_t(h)), &count)
	if count == 0 || list == nil {
		return nil
	}

	entries := unsafe.Slice(list, int(count))
	sources := make([]domain.Source, len(entries))
	for i, e := range entries {
		sources[i] = domain.Source{
			Name: C.GoString(e.p_ndi_name),
			URL:  C.GoString(e.p_url_address),
		}
	}
	return sources
}

func (s *SDK) RecvCreate(opts ports.RecvOptions) (ports.RecvHandle, error) {
	settings := C.NDIlib_recv_create_v3_t{
		color_format:       C.int(opts.ColorFormat),
		bandwidth:          C.int(opts.Bandwidth),
		allow_video_fields: C.bool(opts.AllowVideoFields),
	}
	if opts.Source != nil {
		src := cSource(opts.Source)
		defer freeCSource(src)
		settings.source_to_connect_to = src
	}
	if opts.Name != "" {
		settings.p_ndi_recv_name = C.CString(opts.Name)
		defer C.free(unsafe.Pointer(settings.p_ndi_recv_name))
	}

	instance := C.NDIlib_recv_create_v3(&settings)
	if instance == nil {
		return 0, errors.New("failed to create NDI receiver")
	}
	return ports.RecvHandle(uintptr(instance)), nil
}

func (s *SDK) RecvDestroy(h ports.RecvHandle) {
	C.NDIlib_recv_destroy(C.ndi_recv_ptr(C.uintptr_t(h)))
}

func (s *SDK) RecvConnect(h ports.RecvHandle, source *domain.Source) {
	if source == nil {
		C.NDIlib_recv_connect(C.ndi_recv_ptr(C.uintptr_t(h)), nil)
		return
	}
	src := cSource(source)
	defer freeCSource(src)
	C.NDIlib_recv_connect(C.ndi_recv_ptr(C.uintptr_t(h)), &src)
}

// RecvCapture allocates the descriptors in C memory so the payload can
// outlive this call; the descriptor is the native token and is freed along
// with the payload.
func (s *SDK) RecvCapture(h ports.RecvHandle, kinds domain.CaptureKinds, timeout time.Duration) ports.CaptureResult {
	var (
		video *C.NDIlib_video_frame_v2_t
		audio *C.NDIlib_audio_frame_v2_t
		meta  *C.NDIlib_metadata_frame_t
	)
	if kinds.Has(domain.CaptureVideo) {
		video = (*C.NDIlib_video_frame_v2_t)(C.calloc(1, C.sizeof_NDIlib_video_frame_v2_t))
	}
	if kinds.Has(domain.CaptureAudio) {
		audio = (*C.NDIlib_audio_frame_v2_t)(C.calloc(1, C.sizeof_NDIlib_audio_frame_v2_t))
	}
	if kinds.Has(domain.CaptureMetadata) {
		meta = (*C.NDIlib_metadata_frame_t)(C.calloc(1, C.sizeof_NDIlib_metadata_frame_t))
	}

	ft := C.NDIlib_recv_capture_v2(C.ndi_recv_ptr(C.uintptr_t(h)), video, audio, meta, C.uint32_t(timeout.Milliseconds()))

	res := ports.CaptureResult{Type: domain.FrameType(ft)}
	switch res.Type {
	case domain.FrameTypeVideo:
		res.Video = videoData(video)
		res.Native = video
		video = nil
	case domain.FrameTypeAudio:
		res.Audio = audioData(audio)
		res.Native = audio
		audio = nil
	case domain.FrameTypeMetadata:
		res.Metadata = metadataData(meta)
		res.Native = meta
		meta = nil
	}

	if video != nil {
		C.free(unsafe.Pointer(video))
	}
	if audio != nil {
		C.free(unsafe.Pointer(audio))
	}
	if meta != nil {
		C.free(unsafe.Pointer(meta))
	}
	return res
}

func (s *SDK) RecvFreeVideo(h ports.RecvHandle, native any) {
	v, ok := native.(*C.NDIlib_video_frame_v2_t)
	if !ok || v == nil {
		return
	}
	C.NDIlib_recv_free_video_v2(C.ndi_recv_ptr(C.uintptr_t(h)), v)
	C.free(unsafe.Pointer(v))
}

func (s *SDK) RecvFreeAudio(h ports.RecvHandle, native any) {
	a, ok := native.(*C.NDIlib_audio_frame_v2_t)
	if !ok || a == nil {
		return
	}
	C.NDIlib_recv_free_audio_v2(C.ndi_recv_ptr(C.uintptr_t(h)), a)
	C.free(unsafe.Pointer(a))
}

func (s *SDK) RecvFreeMetadata(h ports.RecvHandle, native any) {
	m, ok := native.(*C.NDIlib_metadata_frame_t)
	if !ok || m == nil {
		return
	}
	C.NDIlib_recv_free_metadata(C.ndi_recv_ptr(C.uintptr_t(h)), m)
	C.free(unsafe.Pointer(m))
}

func videoData(v *C.NDIlib_video_frame_v2_t) domain.VideoFrameData {
	d := domain.VideoFrameData{
		Width:       int(v.xres),
		Height:      int(v.yres),
		FourCC:      domain.FourCC(uint32(v.FourCC)),
		FrameRateN:  int(v.frame_rate_N),
		FrameRateD:  int(v.frame_rate_D),
		AspectRatio: float32(v.picture_aspect_ratio),
		FormatType:  int(v.frame_format_type),
		Timecode:    domain.Timecode(v.timecode),
		Timestamp:   domain.Timecode(v.timestamp),
		LineStride:  int(v.line_stride_in_bytes),
	}
	if v.p_data != nil {
		size := VideoDataSize(d.FourCC, d.LineStride, d.Width, d.Height)
		d.Data = unsafe.Slice((*byte)(unsafe.Pointer(v.p_data)), size)
	}
	if v.p_metadata != nil {
		d.Metadata = C.GoString(v.p_metadata)
	}
	return d
}

func audioData(a *C.NDIlib_audio_frame_v2_t) domain.AudioFrameData {
	d := domain.AudioFrameData{
		SampleRate:    int(a.sample_rate),
		Channels:      int(a.no_channels),
		Samples:       int(a.no_samples),
		ChannelStride: int(a.channel_stride_in_bytes),
		Timecode:      domain.Timecode(a.timecode),
		Timestamp:     domain.Timecode(a.timestamp),
	}
	if a.p_data != nil && d.ChannelStride > 0 {
		d.Data = unsafe.Slice((*float32)(unsafe.Pointer(a.p_data)), d.Channels*d.ChannelStride/4)
	}
	if a.p_metadata != nil {
		d.Metadata = C.GoString(a.p_metadata)
	}
	return d
}

// metadataData copies the message. A zero length means the payload is
// NUL terminated.
func metadataData(m *C.NDIlib_metadata_frame_t) domain.MetadataFrameData {
	d := domain.MetadataFrameData{Timecode: domain.Timecode(m.timecode)}
	if m.p_data == nil {
		return d
	}
	if m.length == 0 {
		d.Data = C.GoString(m.p_data)
	} else {
		d.Data = C.GoStringN(m.p_data, m.length)
	}
	return d
}

func cSource(s *domain.Source) C.NDIlib_source_t {
	src := C.NDIlib_source_t{p_ndi_name: C.CString(s.Name)}
	if s.URL != "" {
		src.p_url_address = C.CString(s.URL)
	}
	return src
}

func freeCSource(cs C.NDIlib_source_t) {
	C.free(unsafe.Pointer(cs.p_ndi_name))
	if cs.p_url_address != nil {
		C.free(unsafe.Pointer(cs.p_url_address))
	}
}
