package connection

import (
	"encoding/json"

	"github.com/boardledger/boardgame-go/internal/zone"
	"google.golang.org/grpc/encoding"
)

// jsonCodecName is the gRPC content subtype the zone service speaks. Zone
// payloads are already JSON envelopes, so there is no protobuf schema.
const jsonCodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return jsonCodecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// Messages of the boardgame.zone.v1.ZoneService.

type pingRequest struct{}

type pingResponse struct {
	Serving bool `json:"serving"`
}

type createZoneRequest struct {
	Command zone.CommandEnvelope `json:"command"`
}

type zoneCommandRequest struct {
	ZoneID  string               `json:"zone_id"`
	Command zone.CommandEnvelope `json:"command"`
}

type commandResponse struct {
	Response zone.ResponseEnvelope `json:"response"`
}

type notificationsRequest struct{}
