package models

import "context"

// Directory groups the reference-data writes behind one value for the HTTP layer.
type Directory struct{}

func (Directory) CreateLocation(ctx context.Context, input *NewLocation) (*Location, error) {
	return CreateLocation(ctx, input)
}

func (Directory) CreatePackaging(ctx context.Context, input *NewPackaging) (*Packaging, error) {
	return CreatePackaging(ctx, input)
}

func (Directory) CreateOutturn(ctx context.Context, input *NewOutturn) (*Outturn, error) {
	return CreateOutturn(ctx, input)
}

func (Directory) DeleteOutturn(ctx context.Context, id int) (*Outturn, error) {
	return DeleteOutturn(ctx, id)
}
