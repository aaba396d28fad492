package fleetstate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func driverKey(driverID string) string {
	return fmt.Sprintf("trackcore:driver:%s:pos", driverID)
}

func shipmentKey(shipmentID string) string {
	return fmt.Sprintf("trackcore:shipment:%s:pos", shipmentID)
}

const allDriversKey = "trackcore:drivers"

func (r *RedisStore) SetPosition(ctx context.Context, pos *Position) error {
	data, err := json.Marshal(pos)
	if err != nil {
		return err
	}
	pipe := r.client.Pipeline()
	pipe.Set(ctx, driverKey(pos.DriverID), data, 0)
	pipe.SAdd(ctx, allDriversKey, pos.DriverID)
	if pos.ShipmentID != "" {
		pipe.Set(ctx, shipmentKey(pos.ShipmentID), data, 0)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisStore) getPosition(ctx context.Context, key string) (*Position, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var pos Position
	return &pos, json.Unmarshal(data, &pos)
}

func (r *RedisStore) DriverPosition(ctx context.Context, driverID string) (*Position, error) {
	return r.getPosition(ctx, driverKey(driverID))
}

func (r *RedisStore) ShipmentPosition(ctx context.Context, shipmentID string) (*Position, error) {
	return r.getPosition(ctx, shipmentKey(shipmentID))
}

func (r *RedisStore) KnownDrivers(ctx context.Context) ([]string, error) {
	return r.client.SMembers(ctx, allDriversKey).Result()
}

func (r *RedisStore) RemoveDriver(ctx context.Context, driverID string) error {
	pipe := r.client.Pipeline()
	pipe.Del(ctx, driverKey(driverID))
	pipe.SRem(ctx, allDriversKey, driverID)
	_, err := pipe.Exec(ctx)
	return err
}
