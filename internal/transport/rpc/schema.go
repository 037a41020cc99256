package rpc

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
	"google.golang.org/protobuf/types/known/structpb"
)

// The descriptor below is api/proto/agent.proto. Messages travel as
// dynamicpb values on the wire, so clients generated from the .proto file
// interoperate with the default proto codec, and the typed Go structs in
// service.go stay the programming surface.
var (
	fileDesc     protoreflect.FileDescriptor
	requestDesc  protoreflect.MessageDescriptor
	responseDesc protoreflect.MessageDescriptor
)

func init() {
	fd, err := protodesc.NewFile(agentFileProto(), protoregistry.GlobalFiles)
	if err != nil {
		panic(fmt.Sprintf("rpc: invalid agent.proto descriptor: %v", err))
	}
	// Registered globally so server reflection can describe the service.
	if err := protoregistry.GlobalFiles.RegisterFile(fd); err != nil {
		panic(fmt.Sprintf("rpc: register agent.proto: %v", err))
	}
	fileDesc = fd
	requestDesc = fd.Messages().ByName("GenerateRequest")
	responseDesc = fd.Messages().ByName("GenerateResponse")
}

func field(name string, number int32, typ descriptorpb.FieldDescriptorProto_Type) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(name),
		Number: proto.Int32(number),
		Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:   typ.Enum(),
	}
}

func messageField(name string, number int32, typeName string) *descriptorpb.FieldDescriptorProto {
	f := field(name, number, descriptorpb.FieldDescriptorProto_TYPE_MESSAGE)
	f.TypeName = proto.String(typeName)
	return f
}

func agentFileProto() *descriptorpb.FileDescriptorProto {
	const (
		tString = descriptorpb.FieldDescriptorProto_TYPE_STRING
		tDouble = descriptorpb.FieldDescriptorProto_TYPE_DOUBLE
		tInt32  = descriptorpb.FieldDescriptorProto_TYPE_INT32
		tBool   = descriptorpb.FieldDescriptorProto_TYPE_BOOL
	)

	temperature := field("temperature", 2, tDouble)
	temperature.Proto3Optional = proto.Bool(true)
	temperature.OneofIndex = proto.Int32(0)

	return &descriptorpb.FileDescriptorProto{
		Name:       proto.String("api/proto/agent.proto"),
		Package:    proto.String("agent.v1"),
		Dependency: []string{structpb.File_google_protobuf_struct_proto.Path()},
		Syntax:     proto.String("proto3"),
		Options:    &descriptorpb.FileOptions{GoPackage: proto.String("ai-agent/internal/transport/rpc;rpc")},
		MessageType: []*descriptorpb.DescriptorProto{
			{
				Name: proto.String("AgentSettings"),
				Field: []*descriptorpb.FieldDescriptorProto{
					field("model_name", 1, tString),
					temperature,
					field("max_tokens", 3, tInt32),
				},
				OneofDecl: []*descriptorpb.OneofDescriptorProto{{Name: proto.String("_temperature")}},
			},
			{
				Name: proto.String("GenerateRequest"),
				Field: []*descriptorpb.FieldDescriptorProto{
					field("user_message", 1, tString),
					field("system_prompt", 2, tString),
					field("context_json", 3, tString),
					messageField("agent_settings", 4, ".agent.v1.AgentSettings"),
					field("structured_output", 5, tBool),
					field("output_schema", 6, tString),
				},
			},
			{
				Name: proto.String("GenerateResponse"),
				Field: []*descriptorpb.FieldDescriptorProto{
					field("text", 1, tString),
					messageField("structured", 2, ".google.protobuf.Struct"),
					field("parse_error", 3, tBool),
					field("latency_ms", 4, tDouble),
					field("model", 5, tString),
					field("run_id", 6, tString),
					field("attempts", 7, tInt32),
					field("prompt_tokens", 8, tInt32),
					field("completion_tokens", 9, tInt32),
					field("retrieved_snippets", 10, tInt32),
				},
			},
		},
		Service: []*descriptorpb.ServiceDescriptorProto{{
			Name: proto.String("AgentService"),
			Method: []*descriptorpb.MethodDescriptorProto{{
				Name:       proto.String("Generate"),
				InputType:  proto.String(".agent.v1.GenerateRequest"),
				OutputType: proto.String(".agent.v1.GenerateResponse"),
			}},
		}},
	}
}

var (
	toProtoOpts   = protojson.UnmarshalOptions{DiscardUnknown: true}
	fromProtoOpts = protojson.MarshalOptions{UseProtoNames: true}
)

// toProto copies a JSON-tagged Go struct into a dynamic message of desc. The
// struct tags use the proto field names, so protojson does the field mapping.
func toProto(v any, desc protoreflect.MessageDescriptor) (*dynamicpb.Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	msg := dynamicpb.NewMessage(desc)
	if err := toProtoOpts.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("encode %s: %w", desc.FullName(), err)
	}
	return msg, nil
}

// fromProto is the inverse of toProto.
func fromProto(msg proto.Message, v any) error {
	data, err := fromProtoOpts.Marshal(msg)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", msg.ProtoReflect().Descriptor().FullName(), err)
	}
	return nil
}
